// File: internal/agent/executor_test.go
package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

var testGrid = schemas.Size{Width: 1024, Height: 768}

func never() bool { return false }

func TestExecuteAllInOrder(t *testing.T) {
	synth := &fakeSynth{}
	e := NewExecutor(synth, 1, zap.NewNop())

	actions := []schemas.Action{
		{Kind: schemas.ActionMove, Coordinate: &schemas.Point{X: 1, Y: 1}},
		{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: 1, Y: 1}},
		{Kind: schemas.ActionType, Text: "ok"},
	}
	results := e.ExecuteAll(context.Background(), actions, testGrid, never)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, schemas.StatusExecuted, r.Status)
		assert.True(t, r.OK())
	}
	assert.Equal(t, []schemas.ActionKind{
		schemas.ActionMove, schemas.ActionClick, schemas.ActionType,
	}, synth.appliedKinds())
}

func TestExecuteAllValidatesBeforeDispatch(t *testing.T) {
	tests := []struct {
		name    string
		action  schemas.Action
		failure schemas.FailureKind
	}{
		{
			name:    "out of bounds",
			action:  schemas.Action{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: 2000, Y: 10}},
			failure: schemas.FailOutOfBounds,
		},
		{
			name:    "negative coordinate",
			action:  schemas.Action{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: -5, Y: 10}},
			failure: schemas.FailOutOfBounds,
		},
		{
			name:    "missing coordinate",
			action:  schemas.Action{Kind: schemas.ActionClick},
			failure: schemas.FailMalformedAction,
		},
		{
			name:    "unknown kind",
			action:  schemas.Action{Kind: "teleport"},
			failure: schemas.FailMalformedAction,
		},
		{
			name:    "control characters in type payload",
			action:  schemas.Action{Kind: schemas.ActionType, Text: "a\x1bb"},
			failure: schemas.FailMalformedAction,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			synth := &fakeSynth{}
			e := NewExecutor(synth, 1, zap.NewNop())

			results := e.ExecuteAll(context.Background(), []schemas.Action{tc.action}, testGrid, never)

			require.Len(t, results, 1)
			assert.Equal(t, schemas.StatusFailed, results[0].Status)
			assert.Equal(t, tc.failure, results[0].Failure)
			assert.NotEmpty(t, results[0].Error)
			// The synthesizer must never see an invalid action.
			assert.Empty(t, synth.appliedKinds())
		})
	}
}

func TestExecuteAllShortCircuits(t *testing.T) {
	synth := &fakeSynth{
		failOn:  schemas.ActionType,
		failErr: fmt.Errorf("%w: stalled", schemas.ErrInputTimeout),
	}
	e := NewExecutor(synth, 1, zap.NewNop())

	actions := []schemas.Action{
		{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: 1, Y: 1}},
		{Kind: schemas.ActionType, Text: "fails"},
		{Kind: schemas.ActionKey, Text: "Return"},
		{Kind: schemas.ActionScreenshot},
	}
	results := e.ExecuteAll(context.Background(), actions, testGrid, never)

	require.Len(t, results, 4)
	assert.Equal(t, schemas.StatusExecuted, results[0].Status)
	assert.Equal(t, schemas.StatusFailed, results[1].Status)
	assert.Equal(t, schemas.FailInputTimeout, results[1].Failure)
	assert.Equal(t, schemas.StatusSkipped, results[2].Status)
	assert.Equal(t, schemas.StatusSkipped, results[3].Status)
}

func TestExecuteAllRetriesInputTimeout(t *testing.T) {
	t.Run("recovers within budget", func(t *testing.T) {
		synth := &fakeSynth{
			failOn:  schemas.ActionClick,
			failErr: fmt.Errorf("%w: stalled", schemas.ErrInputTimeout),
		}
		attempts := 0
		synth.onApply = func(schemas.Action) {
			attempts++
			if attempts == 2 {
				synth.failOn = ""
			}
		}
		e := NewExecutor(synth, 2, zap.NewNop())

		start := time.Now()
		results := e.ExecuteAll(context.Background(), []schemas.Action{
			{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: 1, Y: 1}},
		}, testGrid, never)

		require.Len(t, results, 1)
		assert.Equal(t, schemas.StatusExecuted, results[0].Status)
		assert.Equal(t, 2, attempts)
		// The retry waits out one backoff pause before redispatching.
		assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	})

	t.Run("exhaustion records the failure", func(t *testing.T) {
		synth := &fakeSynth{
			failOn:  schemas.ActionClick,
			failErr: fmt.Errorf("%w: stalled", schemas.ErrInputTimeout),
		}
		attempts := 0
		synth.onApply = func(schemas.Action) { attempts++ }
		e := NewExecutor(synth, 2, zap.NewNop())

		results := e.ExecuteAll(context.Background(), []schemas.Action{
			{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: 1, Y: 1}},
		}, testGrid, never)

		require.Len(t, results, 1)
		assert.Equal(t, schemas.StatusFailed, results[0].Status)
		assert.Equal(t, schemas.FailInputTimeout, results[0].Failure)
		assert.Equal(t, 2, attempts)
	})
}

func TestExecuteAllScreenshotBypassesSynth(t *testing.T) {
	synth := &fakeSynth{}
	e := NewExecutor(synth, 1, zap.NewNop())

	results := e.ExecuteAll(context.Background(),
		[]schemas.Action{{Kind: schemas.ActionScreenshot}}, testGrid, never)

	require.Len(t, results, 1)
	assert.Equal(t, schemas.StatusExecuted, results[0].Status)
	assert.Empty(t, synth.appliedKinds())
}

func TestExecuteAllHonoursCancellation(t *testing.T) {
	synth := &fakeSynth{}
	e := NewExecutor(synth, 1, zap.NewNop())

	cancelled := true
	results := e.ExecuteAll(context.Background(), []schemas.Action{
		{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: 1, Y: 1}},
	}, testGrid, func() bool { return cancelled })

	require.Len(t, results, 1)
	assert.Equal(t, schemas.StatusSkipped, results[0].Status)
	assert.Empty(t, synth.appliedKinds())
}
