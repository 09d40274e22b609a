// Package agent defines the contract of a pipeline stage implementation and
// the registry that maps configured titles to implementations.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"planetoidgen/internal/messaging"
	"planetoidgen/internal/tile"
	"planetoidgen/internal/worker/runtime"
)

// ErrInvalidSettings wraps settings an agent refuses to initialize with.
var ErrInvalidSettings = errors.New("invalid agent settings")

// Agent is one stage of a planetoid's pipeline.
//
// The registry builds a fresh value per use. Initialize is called once with
// the per-planetoid settings before Dependencies or Execute.
type Agent interface {
	Title() string
	Description() string

	// Dependencies lists the neighbors whose previous stage must be complete
	// before this stage runs on a tile at zoom z. The tile itself is implied.
	Dependencies(z int16) ([]Dependency, error)

	Initialize(settings string, deps Deps) error

	// Execute runs the stage on the job's tile.
	Execute(ctx context.Context, job messaging.Job) error
}

// Dependency points at a neighbor tile.
type Dependency struct {
	Direction tile.Direction `json:"direction" yaml:"direction"`
}

// Deps are the collaborators an agent may use.
type Deps struct {
	Logger     *slog.Logger
	HTTPClient *http.Client

	// ControllerURL is the base URL of the controller's HTTP API.
	ControllerURL  string
	InternalSecret string

	// Runtime runs external stage processes. Nil when no runtime is configured.
	Runtime runtime.Runtime
}

// WithDefaults fills the zero-valued collaborators.
func (d Deps) WithDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = http.DefaultClient
	}
	return d
}
