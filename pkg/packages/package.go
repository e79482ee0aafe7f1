package packages

import "fmt"

// StrategyKind tags the update strategy variant
type StrategyKind int

const (
	// OrchestratorManaged packages are checked out by ouranosctl and nothing else
	OrchestratorManaged StrategyKind = iota

	// SelfManaged packages run their own hook after the checkout
	SelfManaged
)

func (k StrategyKind) String() string {
	switch k {
	case OrchestratorManaged:
		return "orchestrator-managed"
	case SelfManaged:
		return "self-managed"
	default:
		return fmt.Sprintf("strategy(%d)", int(k))
	}
}

// Strategy is the update strategy of a package. Hook is set only for SelfManaged.
type Strategy struct {
	Kind StrategyKind
	Hook string
}

// Orchestrated returns the OrchestratorManaged strategy
func Orchestrated() Strategy { return Strategy{Kind: OrchestratorManaged} }

// WithHook returns the SelfManaged strategy for hook
func WithHook(hook string) Strategy { return Strategy{Kind: SelfManaged, Hook: hook} }

func (s Strategy) String() string {
	if s.Kind == SelfManaged {
		return fmt.Sprintf("%s(%s)", s.Kind, s.Hook)
	}
	return s.Kind.String()
}

// Package is one git working tree under <root>/packages
type Package struct {
	Name     string
	Path     string
	IsCore   bool
	Strategy Strategy
}

// Metadata is the optional ouranos-package.toml of a package
type Metadata struct {
	// Hook is the update hook, relative to the package directory
	Hook        string `toml:"hook"`
	Description string `toml:"description"`
}
