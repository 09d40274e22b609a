package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planetoidgen/internal/messaging"
)

type stubAgent struct {
	title string
}

func (s *stubAgent) Title() string { return s.title }
func (s *stubAgent) Description() string { return "stub " + s.title }
func (s *stubAgent) Dependencies(int16) ([]Dependency, error) { return nil, nil }
func (s *stubAgent) Initialize(string, Deps) error { return nil }
func (s *stubAgent) Execute(context.Context, messaging.Job) error { return nil }

func stub(title string) Factory {
	return func() Agent { return &stubAgent{title: title} }
}

func TestRegistry_RegisterAndNew(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("b", stub("b")))
	require.NoError(t, r.Register("a", stub("a")))

	a, err := r.New("a")
	require.NoError(t, err)
	assert.Equal(t, "a", a.Title())

	other, err := r.New("a")
	require.NoError(t, err)
	assert.NotSame(t, a, other)

	assert.Equal(t, []string{"a", "b"}, r.Titles())
	assert.Equal(t, map[string]string{"a": "stub a", "b": "stub b"}, r.Describe())
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", stub("a")))

	assert.Error(t, r.Register("a", stub("a")))
	assert.Error(t, r.Register("", stub("x")))
	assert.Error(t, r.Register("nil", nil))
	assert.Panics(t, func() { r.MustRegister("a", stub("a")) })

	_, err := r.New("missing")
	assert.ErrorIs(t, err, ErrUnknownAgent)
	assert.Contains(t, err.Error(), "missing")
}

func TestDeps_WithDefaults(t *testing.T) {
	d := Deps{}.WithDefaults()
	assert.NotNil(t, d.Logger)
	assert.NotNil(t, d.HTTPClient)
}
