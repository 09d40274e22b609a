// Package builtin holds the agents shipped with planetoidgen.
package builtin

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"planetoidgen/internal/agent"
	"planetoidgen/internal/tile"
)

const (
	DummyTitle     = "PlanetoidGen.DummyAgent"
	ReportingTitle = "PlanetoidGen.DataReportingAgent"
	ContainerTitle = "PlanetoidGen.ContainerAgent"
)

// Register adds every builtin agent to r.
func Register(r *agent.Registry) error {
	for title, f := range map[string]agent.Factory{
		DummyTitle:     func() agent.Agent { return &DummyAgent{} },
		ReportingTitle: func() agent.Agent { return &DataReportingAgent{} },
		ContainerTitle: func() agent.Agent { return &ContainerAgent{} },
	} {
		if err := r.Register(title, f); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the builtin agents.
func NewRegistry() *agent.Registry {
	r := agent.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

// decodeSettings parses YAML (JSON is a subset) settings over the defaults in out.
// Blank settings keep the defaults.
func decodeSettings(title, settings string, out any) error {
	if strings.TrimSpace(settings) == "" {
		return nil
	}
	if err := yaml.Unmarshal([]byte(settings), out); err != nil {
		return fmt.Errorf("%w: %s: %v", agent.ErrInvalidSettings, title, err)
	}
	return nil
}

func dependencies(dirs []tile.Direction) []agent.Dependency {
	out := make([]agent.Dependency, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, agent.Dependency{Direction: d})
	}
	return out
}
