// File: internal/store/store_test.go
package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.BeginSession(ctx, "sess-1", "open the settings page", started))

	turn := schemas.Turn{
		Index: 0,
		Observation: &schemas.Observation{
			ID:     "obs-1",
			PNG:    []byte{1, 2, 3}, // frames are not persisted
			Grid:   schemas.Size{Width: 1024, Height: 768},
			Screen: schemas.Size{Width: 1280, Height: 800},
		},
		RawResponse: `{"actions":[{"action":"click","coordinate":{"x":10,"y":20}}]}`,
		Actions: []schemas.Action{
			{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: 10, Y: 20}},
		},
		Results: []schemas.ActionResult{
			{
				Action: schemas.Action{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: 10, Y: 20}},
				Status: schemas.StatusExecuted,
			},
		},
		StartedAt: started.Add(time.Second),
	}
	require.NoError(t, s.RecordTurn(ctx, "sess-1", turn))

	second := schemas.Turn{
		Index:       1,
		RawResponse: `{"done":true}`,
		Done:        true,
		Summary:     "settings page is open",
		StartedAt:   started.Add(2 * time.Second),
	}
	require.NoError(t, s.RecordTurn(ctx, "sess-1", second))
	require.NoError(t, s.FinishSession(ctx, "sess-1", schemas.OutcomeCompleted, schemas.FailureNone, "settings page is open"))

	turns, err := s.SessionTurns(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)

	got := turns[0]
	assert.Equal(t, 0, got.Index)
	require.NotNil(t, got.Observation)
	assert.Equal(t, "obs-1", got.Observation.ID)
	assert.Empty(t, got.Observation.PNG)
	assert.Equal(t, schemas.Size{Width: 1024, Height: 768}, got.Observation.Grid)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, schemas.ActionClick, got.Actions[0].Kind)
	require.NotNil(t, got.Actions[0].Coordinate)
	assert.Equal(t, 10, got.Actions[0].Coordinate.X)
	require.Len(t, got.Results, 1)
	assert.Equal(t, schemas.StatusExecuted, got.Results[0].Status)

	assert.True(t, turns[1].Done)
	assert.Equal(t, "settings page is open", turns[1].Summary)
	assert.Nil(t, turns[1].Observation)
}

func TestStoreOpensInWALMode(t *testing.T) {
	s := openTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))
}

func TestStoreDuplicateTurnIndexRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	turn := schemas.Turn{Index: 0, RawResponse: "{}"}
	require.NoError(t, s.RecordTurn(ctx, "sess-1", turn))
	// The log is append-only; a second write at the same index must fail
	// rather than overwrite.
	require.Error(t, s.RecordTurn(ctx, "sess-1", turn))
}

func TestStoreUnknownSessionHasNoTurns(t *testing.T) {
	s := openTestStore(t)
	turns, err := s.SessionTurns(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
