// File: internal/agent/orchestrator_test.go
package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Fakes --

type plannerStep struct {
	decision *schemas.ModelDecision
	err      error
}

// fakePlanner replays a script of decisions; past the script's end it repeats
// the last step.
type fakePlanner struct {
	mu    sync.Mutex
	steps []plannerStep
	calls int
}

func (f *fakePlanner) Decide(ctx context.Context, req schemas.DecisionRequest) (*schemas.ModelDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	step := f.steps[idx]
	return step.decision, step.err
}

func (f *fakePlanner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeCapturer serves fresh observations, failing with err when set.
type fakeCapturer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeCapturer) Capture(ctx context.Context) (*schemas.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &schemas.Observation{
		ID:     fmt.Sprintf("obs-%d", f.calls),
		PNG:    []byte{0x89, 'P', 'N', 'G'},
		Grid:   schemas.Size{Width: 1024, Height: 768},
		Screen: schemas.Size{Width: 1024, Height: 768},
	}, nil
}

func (f *fakeCapturer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSynth records applied actions. onApply runs before recording, letting a
// test trigger cancellation mid-batch; failOn makes one kind fail.
type fakeSynth struct {
	mu      sync.Mutex
	applied []schemas.Action
	onApply func(schemas.Action)
	failOn  schemas.ActionKind
	failErr error
}

func (f *fakeSynth) Apply(ctx context.Context, action schemas.Action) error {
	if f.onApply != nil {
		f.onApply(action)
	}
	if f.failOn != "" && action.Kind == f.failOn {
		return f.failErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, action)
	return nil
}

func (f *fakeSynth) Cursor() (schemas.Point, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.applied) == 0 {
		return schemas.Point{}, false
	}
	return schemas.Point{X: 7, Y: 9}, true
}

func (f *fakeSynth) appliedKinds() []schemas.ActionKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]schemas.ActionKind, len(f.applied))
	for i, a := range f.applied {
		kinds[i] = a.Kind
	}
	return kinds
}

// fakeSink records turns; err makes every write fail.
type fakeSink struct {
	mu    sync.Mutex
	turns []schemas.Turn
	err   error
}

func (f *fakeSink) RecordTurn(ctx context.Context, sessionID string, turn schemas.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeSink) recorded() []schemas.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schemas.Turn(nil), f.turns...)
}

// -- Fixture --

type fixture struct {
	planner  *fakePlanner
	capturer *fakeCapturer
	synth    *fakeSynth
	sink     *fakeSink
	session  *Session
	orch     *Orchestrator
}

func setupTest(t *testing.T, steps []plannerStep) *fixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Model.RetryBudget = 3
	cfg.Capture.RetryBudget = 2

	f := &fixture{
		planner:  &fakePlanner{steps: steps},
		capturer: &fakeCapturer{},
		synth:    &fakeSynth{},
		sink:     &fakeSink{},
		session:  NewSession("open the settings page", cfg.Session.MaxTurns),
	}
	executor := NewExecutor(f.synth, 1, zap.NewNop())
	f.orch = NewOrchestrator(cfg, f.planner, f.capturer, executor, zap.NewNop(), f.sink)
	return f
}

func decisionWith(actions ...schemas.Action) *schemas.ModelDecision {
	return &schemas.ModelDecision{Raw: `{"actions":[...]}`, Actions: actions}
}

func doneDecision(summary string) *schemas.ModelDecision {
	return &schemas.ModelDecision{Raw: `{"done":true}`, Done: true, Summary: summary}
}

func clickAt(x, y int) schemas.Action {
	return schemas.Action{Kind: schemas.ActionClick, Coordinate: &schemas.Point{X: x, Y: y}}
}

// -- Tests --

func TestOrchestratorCompletes(t *testing.T) {
	f := setupTest(t, []plannerStep{
		{decision: decisionWith(clickAt(100, 200))},
		{decision: doneDecision("settings page is open")},
	})

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCompleted, outcome)

	gotOutcome, failure, reason := f.session.Outcome()
	assert.Equal(t, schemas.OutcomeCompleted, gotOutcome)
	assert.Equal(t, schemas.FailureNone, failure)
	assert.Equal(t, "settings page is open", reason)

	assert.Equal(t, 2, f.session.TurnCount())
	assert.Equal(t, []schemas.ActionKind{schemas.ActionClick}, f.synth.appliedKinds())

	turns := f.sink.recorded()
	require.Len(t, turns, 2)
	assert.Equal(t, 0, turns[0].Index)
	require.Len(t, turns[0].Results, 1)
	assert.Equal(t, schemas.StatusExecuted, turns[0].Results[0].Status)
	assert.True(t, turns[1].Done)
}

func TestOutOfBoundsShortCircuitsBatch(t *testing.T) {
	f := setupTest(t, []plannerStep{
		{decision: decisionWith(
			clickAt(-5, 10),
			schemas.Action{Kind: schemas.ActionType, Text: "hello"},
		)},
		{decision: doneDecision("gave up on that click")},
	})

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCompleted, outcome)

	// The synthesizer is never invoked for the out-of-bounds click, and the
	// trailing type is skipped, not executed.
	assert.Empty(t, f.synth.appliedKinds())

	turns := f.sink.recorded()
	require.Len(t, turns, 2)
	results := turns[0].Results
	require.Len(t, results, 2)
	assert.Equal(t, schemas.StatusFailed, results[0].Status)
	assert.Equal(t, schemas.FailOutOfBounds, results[0].Failure)
	assert.Equal(t, schemas.StatusSkipped, results[1].Status)
	assert.Equal(t, schemas.FailureNone, results[1].Failure)
}

func TestInputTimeoutIsLocalFailure(t *testing.T) {
	f := setupTest(t, []plannerStep{
		{decision: decisionWith(schemas.Action{Kind: schemas.ActionType, Text: "hello"})},
		{decision: doneDecision("done anyway")},
	})
	f.synth.failOn = schemas.ActionType
	f.synth.failErr = fmt.Errorf("%w: type stalled", schemas.ErrInputTimeout)

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.NoError(t, err)
	// A failed action ends the batch but not the session.
	assert.Equal(t, schemas.OutcomeCompleted, outcome)

	turns := f.sink.recorded()
	require.Len(t, turns, 2)
	require.Len(t, turns[0].Results, 1)
	assert.Equal(t, schemas.FailInputTimeout, turns[0].Results[0].Failure)
	assert.True(t, schemas.IsLocalFailure(turns[0].Results[0].Failure))
}

func TestModelBudgetExhaustedFailsSession(t *testing.T) {
	f := setupTest(t, []plannerStep{
		{err: fmt.Errorf("%w: gibberish", schemas.ErrModelResponse)},
	})

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.Error(t, err)
	assert.Equal(t, schemas.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, schemas.ErrModelResponse)
	assert.Equal(t, 3, f.planner.callCount())

	gotOutcome, failure, _ := f.session.Outcome()
	assert.Equal(t, schemas.OutcomeFailed, gotOutcome)
	assert.Equal(t, schemas.FailModelResponse, failure)
	assert.Equal(t, 0, f.session.TurnCount())
}

func TestCaptureBudgetExhaustedFailsSession(t *testing.T) {
	f := setupTest(t, nil)
	f.planner.steps = []plannerStep{{decision: doneDecision("unreachable")}}
	f.capturer.err = fmt.Errorf("%w: empty frame", schemas.ErrCapture)

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.Error(t, err)
	assert.Equal(t, schemas.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, schemas.ErrCapture)
	assert.Equal(t, 2, f.capturer.callCount())

	_, failure, _ := f.session.Outcome()
	assert.Equal(t, schemas.FailCapture, failure)
	assert.Equal(t, 0, f.planner.callCount())
}

func TestCancellationMidBatch(t *testing.T) {
	f := setupTest(t, []plannerStep{
		{decision: decisionWith(
			clickAt(10, 10),
			clickAt(20, 20),
			clickAt(30, 30),
		)},
	})
	// Cancel while the first action is executing.
	f.synth.onApply = func(schemas.Action) { f.session.Cancel() }

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCancelled, outcome)

	// The in-flight action completed; the rest of the batch never ran.
	turns := f.sink.recorded()
	require.Len(t, turns, 1)
	results := turns[0].Results
	require.Len(t, results, 3)
	assert.Equal(t, schemas.StatusExecuted, results[0].Status)
	assert.Equal(t, schemas.StatusSkipped, results[1].Status)
	assert.Equal(t, schemas.StatusSkipped, results[2].Status)
	assert.Equal(t, []schemas.ActionKind{schemas.ActionClick}, f.synth.appliedKinds())
}

func TestCancelledBeforeStart(t *testing.T) {
	f := setupTest(t, []plannerStep{{decision: doneDecision("unreachable")}})
	f.session.Cancel()

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCancelled, outcome)
	assert.Equal(t, 0, f.planner.callCount())
	assert.Equal(t, 0, f.session.TurnCount())
}

func TestContextCancellationStopsLoop(t *testing.T) {
	f := setupTest(t, []plannerStep{
		{decision: decisionWith(clickAt(10, 10))},
	})

	// Cancel the context while the first action executes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.synth.onApply = func(schemas.Action) { cancel() }

	outcome, err := f.orch.Run(ctx, f.session)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCancelled, outcome)
	assert.Equal(t, 1, f.session.TurnCount())
}

func TestTurnBudgetYieldsLimitExceeded(t *testing.T) {
	f := setupTest(t, []plannerStep{
		{decision: decisionWith(schemas.Action{Kind: schemas.ActionScreenshot})},
	})
	f.session = NewSession("never finishes", 2)

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeLimitExceeded, outcome)
	assert.Equal(t, 2, f.session.TurnCount())

	_, failure, reason := f.session.Outcome()
	assert.Equal(t, schemas.FailSessionLimit, failure)
	assert.Contains(t, reason, "turn budget")
}

func TestSinkErrorsDoNotFailTheLoop(t *testing.T) {
	f := setupTest(t, []plannerStep{
		{decision: decisionWith(clickAt(5, 5))},
		{decision: doneDecision("done")},
	})
	f.sink.err = fmt.Errorf("disk full")

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCompleted, outcome)
	assert.Equal(t, 2, f.session.TurnCount())
}

func TestCursorPositionOutput(t *testing.T) {
	f := setupTest(t, []plannerStep{
		{decision: decisionWith(
			clickAt(10, 10),
			schemas.Action{Kind: schemas.ActionCursor},
		)},
		{decision: doneDecision("done")},
	})

	outcome, err := f.orch.Run(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCompleted, outcome)

	turns := f.sink.recorded()
	require.Len(t, turns, 2)
	results := turns[0].Results
	require.Len(t, results, 2)
	assert.Equal(t, schemas.StatusExecuted, results[1].Status)
	assert.Equal(t, "x=7,y=9", results[1].Output)
}
