package emitter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/ouranosctl/pkg/config"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/beevik/etree"
)

// LaunchdLabelPrefix prefixes the service name in launchd labels
const LaunchdLabelPrefix = "org.ouranos."

// ServiceUnit renders the unit for the selected service manager and returns
// the path it belongs at
func (e *Emitter) ServiceUnit() (string, []byte, error) {
	dir := e.unitDir()
	if e.ServiceManager() == config.ServiceManagerLaunchd {
		label := LaunchdLabelPrefix + e.cfg.Service.Name
		content, err := e.LaunchdPlist()
		if err != nil {
			return "", nil, err
		}
		return filepath.Join(dir, label+".plist"), content, nil
	}
	return filepath.Join(dir, e.cfg.Service.Name+".service"), []byte(e.SystemdUnit()), nil
}

// SystemdUnit renders a systemd user unit running the process in the
// foreground so systemd owns its lifetime
func (e *Emitter) SystemdUnit() string {
	root := e.inst.Root()
	exe := systemdQuote(e.executable)

	var b strings.Builder
	b.WriteString("# Generated by ouranosctl. Run \"ouranosctl regenerate\" instead of editing.\n")
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=Ouranos (%s)\n", root)
	b.WriteString("After=network.target\n")
	b.WriteString("\n[Service]\n")
	b.WriteString("Type=simple\n")
	fmt.Fprintf(&b, "Environment=%s\n", systemdQuote(paths.EnvRoot+"="+root))
	fmt.Fprintf(&b, "WorkingDirectory=%s\n", root)
	fmt.Fprintf(&b, "ExecStart=%s start --foreground\n", exe)
	fmt.Fprintf(&b, "ExecStop=%s stop\n", exe)
	b.WriteString("Restart=on-failure\n")
	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=default.target\n")
	return b.String()
}

// LaunchdPlist renders a launchd agent property list
func (e *Emitter) LaunchdPlist() ([]byte, error) {
	root := e.inst.Root()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective(`DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd"`)

	plist := doc.CreateElement("plist")
	plist.CreateAttr("version", "1.0")
	dict := plist.CreateElement("dict")

	plistString(dict, "Label", LaunchdLabelPrefix+e.cfg.Service.Name)

	dict.CreateElement("key").SetText("ProgramArguments")
	args := dict.CreateElement("array")
	for _, arg := range []string{e.executable, "start", "--foreground"} {
		args.CreateElement("string").SetText(arg)
	}

	dict.CreateElement("key").SetText("EnvironmentVariables")
	env := dict.CreateElement("dict")
	plistString(env, paths.EnvRoot, root)

	plistString(dict, "WorkingDirectory", root)
	plistBool(dict, "RunAtLoad", true)
	plistBool(dict, "KeepAlive", false)
	plistString(dict, "StandardOutPath", e.inst.ProcessLogFile())
	plistString(dict, "StandardErrorPath", e.inst.ProcessLogFile())

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrEmit, "cannot render launchd plist")
	}
	return out, nil
}

func plistString(dict *etree.Element, key, value string) {
	dict.CreateElement("key").SetText(key)
	dict.CreateElement("string").SetText(value)
}

func plistBool(dict *etree.Element, key string, value bool) {
	dict.CreateElement("key").SetText(key)
	if value {
		dict.CreateElement("true")
	} else {
		dict.CreateElement("false")
	}
}

// systemdQuote double-quotes s when systemd would otherwise split it
func systemdQuote(s string) string {
	if !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
