package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu          sync.Mutex
	console     io.Writer = os.Stderr
	verbosity   int
	logFilePath string
	logFile     *os.File
)

// SetupLogger configures the global logger based on verbosity level.
// Output goes to the console until AttachLogFile adds a file sink.
func SetupLogger(v int) {
	mu.Lock()
	defer mu.Unlock()

	verbosity = v
	switch v {
	case 0:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case 1:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case 2:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	rebuild()

	log.Debug().Int("verbosity", v).Msg("Logger initialized")
}

// SetConsole redirects console output, mainly for tests.
func SetConsole(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = w
	rebuild()
}

// AttachLogFile tees all log output into the file at path, creating parent
// directories as needed. A previously attached file is closed.
func AttachLogFile(path string) error {
	mu.Lock()
	defer mu.Unlock()

	file, err := setupLogFile(path)
	if err != nil {
		return err
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file
	logFilePath = path
	rebuild()

	log.Debug().Str("logFile", path).Msg("Log file attached")
	return nil
}

// LogFilePath returns the path of the attached log file, or "" when logging
// to the console only.
func LogFilePath() string {
	mu.Lock()
	defer mu.Unlock()
	return logFilePath
}

// Close detaches and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
		logFilePath = ""
	}
	rebuild()
}

// rebuild must be called with mu held
func rebuild() {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.Kitchen,
	}

	writers := []io.Writer{consoleWriter}
	if logFile != nil {
		writers = append(writers, logFile)
	}

	log.Logger = zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()

	// Add caller information for debug and trace levels
	if verbosity >= 2 {
		log.Logger = log.Logger.With().Caller().Logger()
	}
}

// GetLogger returns a contextualized logger with the given name
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// setupLogFile creates the log file and its parent directories
func setupLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return file, nil
}

// LogCommand logs a command execution with its arguments
func LogCommand(logger zerolog.Logger, cmd string, args []string) {
	logger.Debug().
		Str("command", cmd).
		Strs("args", args).
		Msg("Executing command")
}

// LogOperationStart logs the start of an operation and returns a function to log its completion
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().
		Str("operation", operation).
		Msg("Operation started")

	return func() {
		logger.Debug().
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Msg("Operation completed")
	}
}
