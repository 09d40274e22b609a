package builtin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"planetoidgen/internal/agent"
	"planetoidgen/internal/messaging"
	"planetoidgen/internal/tile"
)

// ErrRehearsal is returned by a DummyAgent configured to fail.
var ErrRehearsal = errors.New("dummy agent failure")

type dummySettings struct {
	Delay        time.Duration    `yaml:"delay"`
	Dependencies []tile.Direction `yaml:"dependencies"`
	Fail         bool             `yaml:"fail"`
}

// DummyAgent waits and succeeds. Used to rehearse pipelines.
type DummyAgent struct {
	settings dummySettings
	logger   *slog.Logger
}

func (a *DummyAgent) Title() string { return DummyTitle }

func (a *DummyAgent) Description() string {
	return "Sleeps for the configured delay. Settings: delay, dependencies, fail."
}

func (a *DummyAgent) Initialize(settings string, deps agent.Deps) error {
	a.settings = dummySettings{Delay: 3 * time.Second}
	if err := decodeSettings(DummyTitle, settings, &a.settings); err != nil {
		return err
	}
	if a.settings.Delay < 0 {
		return errors.Join(agent.ErrInvalidSettings, errors.New("delay must not be negative"))
	}
	a.logger = deps.WithDefaults().Logger
	return nil
}

func (a *DummyAgent) Dependencies(z int16) ([]agent.Dependency, error) {
	return dependencies(a.settings.Dependencies), nil
}

func (a *DummyAgent) Execute(ctx context.Context, job messaging.Job) error {
	if err := messaging.Sleep(ctx, a.settings.Delay); err != nil {
		return err
	}
	if a.settings.Fail {
		return ErrRehearsal
	}
	a.logger.Debug("dummy stage done", "job", job.String())
	return nil
}
