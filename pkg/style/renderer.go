package style

import (
	"fmt"
	"strings"
)

// Status is a line indicator
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusWarning Status = "warning"
	StatusInfo    Status = "info"
	StatusPending Status = "pending"
)

var indicators = map[Status]struct {
	symbol string
	plain  string
	style  string
}{
	StatusSuccess: {"✓", "ok", "Success"},
	StatusError:   {"✗", "error", "Error"},
	StatusWarning: {"!", "warn", "Warning"},
	StatusInfo:    {"•", "-", "Info"},
	StatusPending: {"○", "..", "Muted"},
}

// Renderer applies named styles, or none in plain mode
type Renderer struct {
	plain bool
}

// NewRenderer returns a renderer for the resolved format
func NewRenderer(format Format) *Renderer {
	return &Renderer{plain: format != FormatTerminal}
}

// Plain reports whether styling is disabled
func (r *Renderer) Plain() bool { return r.plain }

// Style renders text in the named style
func (r *Renderer) Style(name, text string) string {
	if r.plain {
		return text
	}
	return GetStyle(name).Render(text)
}

// Indicator returns the status marker
func (r *Renderer) Indicator(status Status) string {
	ind, ok := indicators[status]
	if !ok {
		ind = indicators[StatusInfo]
	}
	if r.plain {
		return "[" + ind.plain + "]"
	}
	return GetStyle(ind.style).Render(ind.symbol)
}

// Line renders one indicator-led line
func (r *Renderer) Line(status Status, format string, args ...interface{}) string {
	return r.Indicator(status) + " " + fmt.Sprintf(format, args...)
}

// Indent prefixes every line of s with two spaces per level
func Indent(s string, level int) string {
	pad := strings.Repeat("  ", level)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}
