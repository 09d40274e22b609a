// Package memory is an in-process store with the same semantics as the
// Postgres store. It backs tests and single-process runs.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"planetoidgen/internal/store"
	"planetoidgen/internal/tile"
)

type Store struct {
	mu         sync.Mutex
	tiles      map[tile.Address]*store.Tile
	byID       map[string]tile.Address
	agents     map[int][]store.AgentInfo
	planetoids map[int]store.Planetoid
	nextID     int
	reports    map[string][]store.Report
	nextReport int64
}

var (
	_ store.TileStore      = (*Store)(nil)
	_ store.AgentRegistry  = (*Store)(nil)
	_ store.PlanetoidStore = (*Store)(nil)
	_ store.ReportStore    = (*Store)(nil)
)

func New() *Store {
	return &Store{
		tiles:      make(map[tile.Address]*store.Tile),
		byID:       make(map[string]tile.Address),
		agents:     make(map[int][]store.AgentInfo),
		planetoids: make(map[int]store.Planetoid),
		reports:    make(map[string][]store.Report),
	}
}

func copyTile(t *store.Tile) *store.Tile {
	c := *t
	if t.LastAgent != nil {
		v := *t.LastAgent
		c.LastAgent = &v
	}
	if t.ModifiedAt != nil {
		v := *t.ModifiedAt
		c.ModifiedAt = &v
	}
	return &c
}

func (s *Store) SelectTile(ctx context.Context, planetoidID int, z int16, x, y int64) (*store.Tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := tile.Address{PlanetoidID: planetoidID, Z: z, X: x, Y: y}
	t, ok := s.tiles[addr]
	if !ok {
		t = &store.Tile{
			ID:               uuid.NewString(),
			PlanetoidID:      planetoidID,
			Z:                z,
			X:                x,
			Y:                y,
			LastIndexedAgent: -1,
			CreatedAt:        time.Now().UTC(),
		}
		s.tiles[addr] = t
		s.byID[t.ID] = addr
	}
	return copyTile(t), nil
}

// update applies fn to the tile under the lock and returns a copy.
func (s *Store) update(tileID string, fn func(t *store.Tile)) (*store.Tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr, ok := s.byID[tileID]
	if !ok {
		return nil, store.ErrNotFound
	}
	t := s.tiles[addr]
	fn(t)
	return copyTile(t), nil
}

func (s *Store) UpdateLastModified(ctx context.Context, tileID string, lastAgent *int, modifiedAt *time.Time) (*store.Tile, error) {
	return s.update(tileID, func(t *store.Tile) {
		t.LastAgent = nil
		if lastAgent != nil {
			v := *lastAgent
			t.LastAgent = &v
		}
		t.ModifiedAt = nil
		if modifiedAt != nil {
			v := modifiedAt.UTC()
			t.ModifiedAt = &v
		}
	})
}

func (s *Store) AcquireLease(ctx context.Context, tileID string, agentIndex int, now time.Time) (*store.Tile, error) {
	return s.UpdateLastModified(ctx, tileID, &agentIndex, &now)
}

func (s *Store) CompleteAgent(ctx context.Context, tileID string, agentIndex int) (*store.Tile, error) {
	return s.update(tileID, func(t *store.Tile) {
		v := agentIndex
		t.LastAgent = &v
		t.LastIndexedAgent = max(t.LastIndexedAgent, agentIndex)
		t.ModifiedAt = nil
	})
}

func (s *Store) ReleaseLease(ctx context.Context, tileID string) (*store.Tile, error) {
	return s.update(tileID, func(t *store.Tile) {
		t.ModifiedAt = nil
	})
}

// Tile returns the stored tile without creating it.
func (s *Store) Tile(addr tile.Address) (*store.Tile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiles[addr]
	if !ok {
		return nil, false
	}
	return copyTile(t), true
}

func (s *Store) GetAgents(ctx context.Context, planetoidID int) ([]store.AgentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AgentInfo, len(s.agents[planetoidID]))
	copy(out, s.agents[planetoidID])
	return out, nil
}

func (s *Store) SetAgents(ctx context.Context, planetoidID int, agents []store.AgentInfo) ([]store.AgentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]store.AgentInfo, len(agents))
	for i, a := range agents {
		a.PlanetoidID = planetoidID
		a.IndexID = i
		stored[i] = a
	}
	s.agents[planetoidID] = stored

	out := make([]store.AgentInfo, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *Store) ClearAgents(ctx context.Context, planetoidID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.agents[planetoidID]))
	delete(s.agents, planetoidID)
	return n, nil
}

func (s *Store) CreatePlanetoid(ctx context.Context, p *store.Planetoid) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	p.CreatedAt = time.Now().UTC()
	s.planetoids[p.ID] = *p
	return p.ID, nil
}

func (s *Store) GetPlanetoid(ctx context.Context, id int) (*store.Planetoid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.planetoids[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListPlanetoids(ctx context.Context) ([]store.Planetoid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Planetoid, 0, len(s.planetoids))
	for _, p := range s.planetoids {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveReport(ctx context.Context, connectionID string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReport++
	s.reports[connectionID] = append(s.reports[connectionID], store.Report{
		ID:           s.nextReport,
		ConnectionID: connectionID,
		Payload:      append(json.RawMessage(nil), payload...),
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

func (s *Store) DrainReports(ctx context.Context, connectionID string) ([]store.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.reports[connectionID]
	delete(s.reports, connectionID)
	if out == nil {
		out = []store.Report{}
	}
	return out, nil
}
