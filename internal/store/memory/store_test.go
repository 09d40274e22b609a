package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planetoidgen/internal/store"
	"planetoidgen/internal/tile"
)

func TestTiles_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	tl, err := s.SelectTile(ctx, 1, 2, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, -1, tl.LastIndexedAgent)
	assert.Nil(t, tl.LastAgent)

	again, err := s.SelectTile(ctx, 1, 2, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, tl.ID, again.ID)

	now := time.Now()
	leased, err := s.AcquireLease(ctx, tl.ID, 0, now)
	require.NoError(t, err)
	require.NotNil(t, leased.LastAgent)
	assert.Equal(t, 0, *leased.LastAgent)
	require.NotNil(t, leased.ModifiedAt)

	done, err := s.CompleteAgent(ctx, tl.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, done.LastIndexedAgent)
	assert.Nil(t, done.ModifiedAt)

	// Progress never moves backwards.
	done, err = s.CompleteAgent(ctx, tl.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, done.LastIndexedAgent)

	_, err = s.AcquireLease(ctx, tl.ID, 2, now)
	require.NoError(t, err)
	released, err := s.ReleaseLease(ctx, tl.ID)
	require.NoError(t, err)
	assert.Nil(t, released.ModifiedAt)
	assert.Equal(t, 1, released.LastIndexedAgent)

	stored, ok := s.Tile(tile.Address{PlanetoidID: 1, Z: 2, X: 3, Y: 1})
	require.True(t, ok)
	assert.Equal(t, 2, *stored.LastAgent)

	_, err = s.ReleaseLease(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTiles_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	tl, _ := s.SelectTile(ctx, 1, 0, 0, 0)
	tl.LastIndexedAgent = 5

	again, _ := s.SelectTile(ctx, 1, 0, 0, 0)
	assert.Equal(t, -1, again.LastIndexedAgent)
}

func TestAgents(t *testing.T) {
	ctx := context.Background()
	s := New()

	agents, err := s.SetAgents(ctx, 4, []store.AgentInfo{
		{Title: "a", IndexID: 9},
		{Title: "b", ShouldRerunIfLast: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, agents[0].IndexID)
	assert.Equal(t, 1, agents[1].IndexID)
	assert.Equal(t, 4, agents[1].PlanetoidID)

	got, err := s.GetAgents(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, agents, got)

	n, err := s.ClearAgents(ctx, 4)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	got, _ = s.GetAgents(ctx, 4)
	assert.Empty(t, got)
}

func TestPlanetoidsAndReports(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.CreatePlanetoid(ctx, &store.Planetoid{Title: "Ceres", Seed: 42, Radius: 470})
	require.NoError(t, err)
	p, err := s.GetPlanetoid(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ceres", p.Title)
	_, err = s.GetPlanetoid(ctx, 99)
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListPlanetoids(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.SaveReport(ctx, "c1", json.RawMessage(`{"x":1}`)))
	require.NoError(t, s.SaveReport(ctx, "c1", json.RawMessage(`{"x":2}`)))
	reports, err := s.DrainReports(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.JSONEq(t, `{"x":1}`, string(reports[0].Payload))

	reports, err = s.DrainReports(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, reports)
}
