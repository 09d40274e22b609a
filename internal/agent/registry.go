package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownAgent is returned for a title nobody registered.
var ErrUnknownAgent = errors.New("unknown agent")

// Factory builds an uninitialized agent.
type Factory func() Agent

// Registry maps agent titles to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under title. Titles are unique.
func (r *Registry) Register(title string, f Factory) error {
	if title == "" {
		return errors.New("agent title is required")
	}
	if f == nil {
		return fmt.Errorf("agent %s: nil factory", title)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[title]; ok {
		return fmt.Errorf("agent %s is already registered", title)
	}
	r.factories[title] = f
	return nil
}

// MustRegister is Register for init-time wiring.
func (r *Registry) MustRegister(title string, f Factory) {
	if err := r.Register(title, f); err != nil {
		panic(err)
	}
}

// New returns a fresh agent for title.
func (r *Registry) New(title string) (Agent, error) {
	r.mu.RLock()
	f, ok := r.factories[title]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, title)
	}
	return f(), nil
}

// Titles lists registered titles in order.
func (r *Registry) Titles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	titles := make([]string, 0, len(r.factories))
	for t := range r.factories {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// Describe returns title to description for every registered agent.
func (r *Registry) Describe() map[string]string {
	out := make(map[string]string)
	for _, t := range r.Titles() {
		a, err := r.New(t)
		if err != nil {
			continue
		}
		out[t] = a.Description()
	}
	return out
}
