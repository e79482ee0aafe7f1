package emitter

import (
	"path"
	"strings"
	"unicode"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/packages"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/pelletier/go-toml/v2"
)

const manifestHeader = "# Generated by ouranosctl from the packages/ directory. Do not edit.\n\n"

// pyproject is the subset of pyproject.toml ouranosctl owns
type pyproject struct {
	Project project `toml:"project"`
	Tool    tool    `toml:"tool"`
}

type project struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Dependencies []string `toml:"dependencies"`
}

type tool struct {
	UV uvTool `toml:"uv"`
}

type uvTool struct {
	Workspace uvWorkspace         `toml:"workspace"`
	Sources   map[string]uvSource `toml:"sources"`
}

type uvWorkspace struct {
	Members []string `toml:"members"`
}

type uvSource struct {
	Workspace bool `toml:"workspace"`
}

// Manifest renders the workspace manifest listing every package as a member
// and as a dependency resolved from the workspace
func (e *Emitter) Manifest(pkgs []packages.Package) ([]byte, error) {
	doc := pyproject{
		Project: project{
			Name:         projectName(e.inst.Name()),
			Version:      "0.0.0",
			Dependencies: []string{},
		},
		Tool: tool{UV: uvTool{
			Workspace: uvWorkspace{Members: []string{}},
			Sources:   map[string]uvSource{},
		}},
	}
	for _, p := range pkgs {
		doc.Project.Dependencies = append(doc.Project.Dependencies, p.Name)
		doc.Tool.UV.Workspace.Members = append(doc.Tool.UV.Workspace.Members, path.Join(paths.PackagesDirName, p.Name))
		doc.Tool.UV.Sources[p.Name] = uvSource{Workspace: true}
	}

	body, err := toml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrEmit, "cannot render manifest")
	}
	return append([]byte(manifestHeader), body...), nil
}

// projectName normalizes an installation directory name into a valid
// project name
func projectName(name string) string {
	name = strings.ToLower(name)
	mapped := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-') {
			return r
		}
		return '-'
	}, name)
	mapped = strings.Trim(mapped, "-._")
	if mapped == "" {
		return "ouranos"
	}
	return mapped
}
