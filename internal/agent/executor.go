// File: internal/agent/executor.go
// Description: The action executor. It runs one model decision's actions
// strictly in order: each action is validated against the latest observation
// before the synthesizer is touched, a failure short-circuits the remainder
// of the batch, and every outcome is folded into a typed result. Action
// failures never propagate as Go errors past this boundary.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// cursorReporter is implemented by synthesizers that track the cursor; the
// cursor_position action reads it.
type cursorReporter interface {
	Cursor() (schemas.Point, bool)
}

// Executor dispatches validated actions to the input synthesizer.
type Executor struct {
	synth       schemas.Synthesizer
	retryBudget int
	logger      *zap.Logger
}

// NewExecutor builds an executor. retryBudget is the total number of dispatch
// attempts per action when the synthesizer times out; values below 1 mean a
// single attempt.
func NewExecutor(synth schemas.Synthesizer, retryBudget int, logger *zap.Logger) *Executor {
	if retryBudget < 1 {
		retryBudget = 1
	}
	return &Executor{synth: synth, retryBudget: retryBudget, logger: logger}
}

// ExecuteAll runs the batch in order against the given grid. The first
// failure marks its action failed and every later action skipped; a
// cancellation observed mid-batch skips the remainder without marking
// anything failed.
func (e *Executor) ExecuteAll(ctx context.Context, actions []schemas.Action, grid schemas.Size, cancelled func() bool) []schemas.ActionResult {
	results := make([]schemas.ActionResult, 0, len(actions))
	aborted := false

	for _, action := range actions {
		if aborted || cancelled() || ctx.Err() != nil {
			results = append(results, schemas.ActionResult{
				Action: action,
				Status: schemas.StatusSkipped,
			})
			continue
		}
		result := e.execute(ctx, action, grid)
		if result.Status == schemas.StatusFailed {
			aborted = true
		}
		results = append(results, result)
	}
	return results
}

// execute validates and dispatches a single action.
func (e *Executor) execute(ctx context.Context, action schemas.Action, grid schemas.Size) schemas.ActionResult {
	result := schemas.ActionResult{Action: action}

	// Validation happens entirely in front of the synthesizer: a malformed or
	// out-of-bounds action never generates host input.
	if err := action.Validate(grid); err != nil {
		e.logger.Warn("Action rejected before dispatch.",
			zap.String("kind", string(action.Kind)),
			zap.Error(err))
		result.Status = schemas.StatusFailed
		result.Failure = schemas.ClassifyFailure(err)
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	err := e.dispatch(ctx, action)
	for attempt := 1; attempt < e.retryBudget && errors.Is(err, schemas.ErrInputTimeout) && ctx.Err() == nil; attempt++ {
		e.logger.Warn("Action timed out, retrying.",
			zap.String("kind", string(action.Kind)),
			zap.Int("attempt", attempt+1))
		if pauseErr := retryPause(ctx, attempt); pauseErr != nil {
			break
		}
		err = e.dispatch(ctx, action)
	}
	result.Duration = time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Cancellation is not an action failure; the loop decides what the
			// interruption means.
			result.Status = schemas.StatusSkipped
			return result
		}
		e.logger.Warn("Action failed.",
			zap.String("kind", string(action.Kind)),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
		result.Status = schemas.StatusFailed
		result.Failure = schemas.ClassifyFailure(err)
		result.Error = err.Error()
		return result
	}

	result.Status = schemas.StatusExecuted
	if action.Kind == schemas.ActionCursor {
		if reporter, ok := e.synth.(cursorReporter); ok {
			if pos, known := reporter.Cursor(); known {
				result.Output = fmt.Sprintf("x=%d,y=%d", pos.X, pos.Y)
			} else {
				result.Output = "unknown"
			}
		}
	}
	e.logger.Debug("Action executed.",
		zap.String("kind", string(action.Kind)),
		zap.Duration("duration", result.Duration))
	return result
}

func (e *Executor) dispatch(ctx context.Context, action schemas.Action) error {
	if action.Kind == schemas.ActionScreenshot {
		// Observation is satisfied by the closing capture of the turn.
		return nil
	}
	return e.synth.Apply(ctx, action)
}
