package emitter

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/ouranosctl/pkg/paths"
)

// Sentinels delimiting the managed block in a shell profile
const (
	BlockStart = "# >>> ouranosctl >>>"
	BlockEnd   = "# <<< ouranosctl <<<"
)

// helperCommands are dispatched by the shell helper to ouranosctl
var helperCommands = []string{"start", "stop", "update", "status", "recover", "regenerate"}

// ShellBlock renders the managed profile block, sentinels included
func (e *Emitter) ShellBlock() string {
	fn := e.cfg.Shell.Function
	usage := fmt.Sprintf("usage: %s {%s} [flags]", fn, strings.Join(helperCommands, "|"))

	var b strings.Builder
	b.WriteString(BlockStart + "\n")
	b.WriteString("# Managed by ouranosctl. Changes inside this block are overwritten.\n")
	fmt.Fprintf(&b, "export %s=%s\n", paths.EnvRoot, shellQuote(e.inst.Root()))
	fmt.Fprintf(&b, "%s() {\n", fn)
	b.WriteString("    case \"$1\" in\n")
	fmt.Fprintf(&b, "        %s)\n", strings.Join(helperCommands, "|"))
	fmt.Fprintf(&b, "            %s=%s %s \"$@\"\n", paths.EnvRoot, shellQuote(e.inst.Root()), shellQuote(e.executable))
	b.WriteString("            ;;\n")
	b.WriteString("        *)\n")
	fmt.Fprintf(&b, "            echo %s >&2\n", shellQuote(usage))
	b.WriteString("            return 2\n")
	b.WriteString("            ;;\n")
	b.WriteString("    esac\n")
	b.WriteString("}\n")
	b.WriteString(BlockEnd + "\n")
	return b.String()
}

// RenderProfile returns existing with every managed block removed and block
// put where the first one was, or appended when there was none. A start
// sentinel without its end sentinel is an error.
func RenderProfile(existing []byte, block string) ([]byte, error) {
	lines := strings.SplitAfter(string(existing), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var out strings.Builder
	inserted := false
	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != BlockStart {
			out.WriteString(lines[i])
			continue
		}
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == BlockEnd {
				end = j
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("line %d: %q has no matching %q", i+1, BlockStart, BlockEnd)
		}
		if !inserted {
			out.WriteString(block)
			inserted = true
		}
		i = end
	}

	if !inserted {
		rendered := out.String()
		if rendered != "" {
			if !strings.HasSuffix(rendered, "\n") {
				out.WriteString("\n")
			}
			out.WriteString("\n")
		}
		out.WriteString(block)
	}
	return []byte(out.String()), nil
}

// shellQuote single-quotes s for POSIX shells
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
