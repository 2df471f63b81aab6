// File: internal/agent/orchestrator.go
// Description: The control loop. One iteration is observe -> decide -> act:
// the latest observation goes to the model, the returned actions run in
// order, and a fresh capture closes the turn. The loop is single-threaded
// with cancellation checkpoints at every suspension point; concurrency lives
// inside the components, never in the loop itself.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// settler is implemented by capturers that support a post-action settle
// delay.
type settler interface {
	Settle(ctx context.Context) error
}

// Orchestrator drives one session to a terminal outcome.
type Orchestrator struct {
	planner  schemas.Planner
	capturer schemas.Capturer
	executor *Executor
	sinks    []schemas.TurnSink

	modelBudget   int
	captureBudget int
	logger        *zap.Logger
}

// NewOrchestrator wires the loop. Retry budgets come from the config; sinks
// receive every recorded turn best-effort.
func NewOrchestrator(cfg *config.Config, planner schemas.Planner, capturer schemas.Capturer, executor *Executor, logger *zap.Logger, sinks ...schemas.TurnSink) *Orchestrator {
	return &Orchestrator{
		planner:       planner,
		capturer:      capturer,
		executor:      executor,
		sinks:         sinks,
		modelBudget:   cfg.Model.RetryBudget,
		captureBudget: cfg.Capture.RetryBudget,
		logger:        logger.Named("orchestrator"),
	}
}

// Run executes the loop until the session reaches a terminal outcome. The
// returned error is the underlying fault for OutcomeFailed and nil for every
// other outcome; the session itself always carries the final verdict.
func (o *Orchestrator) Run(ctx context.Context, session *Session) (schemas.Outcome, error) {
	o.logger.Info("Session starting.",
		zap.String("session_id", session.ID()),
		zap.String("objective", session.Objective()),
		zap.Int("max_turns", session.MaxTurns()))

	obs, err := o.observe(ctx, session)
	if err != nil {
		if o.interrupted(ctx, session) {
			return o.finishCancelled(session), nil
		}
		return o.finishFailed(session, fmt.Errorf("initial capture: %w", err))
	}

	for {
		// Checkpoint: top of the turn.
		if o.interrupted(ctx, session) {
			return o.finishCancelled(session), nil
		}

		if session.TurnCount() >= session.MaxTurns() {
			// A designed terminal condition, distinct from failure.
			o.logger.Warn("Turn budget exhausted.",
				zap.String("session_id", session.ID()),
				zap.Int("max_turns", session.MaxTurns()))
			session.Finish(schemas.OutcomeLimitExceeded, schemas.FailSessionLimit,
				fmt.Sprintf("turn budget of %d exhausted before completion", session.MaxTurns()))
			return schemas.OutcomeLimitExceeded, nil
		}

		decision, err := o.decide(ctx, session, obs)
		if err != nil {
			if o.interrupted(ctx, session) {
				return o.finishCancelled(session), nil
			}
			return o.finishFailed(session, err)
		}

		// Checkpoint: between the model reply and execution.
		if o.interrupted(ctx, session) {
			return o.finishCancelled(session), nil
		}

		turn := schemas.Turn{
			Observation: obs,
			RawResponse: decision.Raw,
			Actions:     decision.Actions,
			Done:        decision.Done,
			Summary:     decision.Summary,
			StartedAt:   time.Now().UTC(),
		}
		if len(decision.Actions) > 0 {
			turn.Results = o.executor.ExecuteAll(ctx, decision.Actions, obs.Grid, session.Cancelled)
		}

		recorded := session.AppendTurn(turn)
		o.notifySinks(ctx, session.ID(), recorded)
		o.logger.Info("Turn recorded.",
			zap.String("session_id", session.ID()),
			zap.Int("turn", recorded.Index),
			zap.Int("actions", len(recorded.Actions)),
			zap.Bool("done", recorded.Done))

		if decision.Done {
			session.Finish(schemas.OutcomeCompleted, schemas.FailureNone, decision.Summary)
			return schemas.OutcomeCompleted, nil
		}

		// Checkpoint: after execution, before the closing capture.
		if o.interrupted(ctx, session) {
			return o.finishCancelled(session), nil
		}

		if s, ok := o.capturer.(settler); ok {
			if err := s.Settle(ctx); err != nil {
				return o.finishCancelled(session), nil
			}
		}

		obs, err = o.observe(ctx, session)
		if err != nil {
			if o.interrupted(ctx, session) {
				return o.finishCancelled(session), nil
			}
			return o.finishFailed(session, fmt.Errorf("closing capture: %w", err))
		}
	}
}

// decide asks the model for the next actions, retrying up to the model
// budget. Each attempt sees the same read-only history snapshot semantics:
// the snapshot is taken fresh so retries reflect nothing the model hasn't
// produced.
func (o *Orchestrator) decide(ctx context.Context, session *Session, obs *schemas.Observation) (*schemas.ModelDecision, error) {
	req := schemas.DecisionRequest{
		Objective:   session.Objective(),
		History:     session.Snapshot().Turns,
		Observation: obs,
	}

	var lastErr error
	for attempt := 1; attempt <= o.modelBudget; attempt++ {
		if o.interrupted(ctx, session) {
			return nil, interruptErr(ctx)
		}
		decision, err := o.planner.Decide(ctx, req)
		if err == nil {
			return decision, nil
		}
		lastErr = err
		o.logger.Warn("Model call failed.",
			zap.String("session_id", session.ID()),
			zap.Int("attempt", attempt),
			zap.Int("budget", o.modelBudget),
			zap.Error(err))
		if attempt < o.modelBudget {
			if err := retryPause(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("model budget of %d exhausted: %w", o.modelBudget, lastErr)
}

// observe captures the screen, retrying up to the capture budget.
func (o *Orchestrator) observe(ctx context.Context, session *Session) (*schemas.Observation, error) {
	var lastErr error
	for attempt := 1; attempt <= o.captureBudget; attempt++ {
		if o.interrupted(ctx, session) {
			return nil, interruptErr(ctx)
		}
		obs, err := o.capturer.Capture(ctx)
		if err == nil {
			return obs, nil
		}
		lastErr = err
		o.logger.Warn("Capture failed.",
			zap.String("session_id", session.ID()),
			zap.Int("attempt", attempt),
			zap.Int("budget", o.captureBudget),
			zap.Error(err))
		if attempt < o.captureBudget {
			if err := retryPause(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("capture budget of %d exhausted: %w", o.captureBudget, lastErr)
}

// notifySinks forwards the turn to every sink. Sink errors are logged and
// dropped; persistence must never fail the loop.
func (o *Orchestrator) notifySinks(ctx context.Context, sessionID string, turn schemas.Turn) {
	for _, sink := range o.sinks {
		if err := sink.RecordTurn(ctx, sessionID, turn); err != nil {
			o.logger.Warn("Turn sink failed.",
				zap.String("session_id", sessionID),
				zap.Int("turn", turn.Index),
				zap.Error(err))
		}
	}
}

// retryPause waits briefly between retry attempts, growing linearly with the
// attempt number. Transient transport retries back off inside the components;
// this spacing only keeps whole-call retries from hammering a sick backend.
func retryPause(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * 250 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) interrupted(ctx context.Context, session *Session) bool {
	return session.Cancelled() || ctx.Err() != nil
}

// interruptErr normalizes a checkpoint hit into a non-nil error even when the
// stop came from the session flag rather than the context.
func interruptErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.Canceled
}

func (o *Orchestrator) finishCancelled(session *Session) schemas.Outcome {
	o.logger.Info("Session cancelled.", zap.String("session_id", session.ID()))
	session.Finish(schemas.OutcomeCancelled, schemas.FailureNone, "cancellation requested")
	return schemas.OutcomeCancelled
}

func (o *Orchestrator) finishFailed(session *Session, err error) (schemas.Outcome, error) {
	kind := schemas.ClassifyFailure(err)
	o.logger.Error("Session failed.",
		zap.String("session_id", session.ID()),
		zap.String("failure", string(kind)),
		zap.Error(err))
	session.Finish(schemas.OutcomeFailed, kind, err.Error())
	return schemas.OutcomeFailed, err
}
