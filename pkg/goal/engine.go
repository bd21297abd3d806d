package goal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lingopod/lingopod/pkg/jsontime"
)

// Evaluator judges one utterance against the active goal.
type Evaluator interface {
	Evaluate(ctx context.Context, g *Goal, utterance string) (*Verdict, error)
}

// Store persists goal progress.
type Store interface {
	// SaveGoal upserts the current goal state.
	SaveGoal(ctx context.Context, g *Goal) error

	// RecordCompletion records a completed goal and the XP awarded for it.
	RecordCompletion(ctx context.Context, g *Goal, xp int) error
}

// Seeder produces the next goal after a completion.
type Seeder interface {
	Next(ctx context.Context, prev *Goal, recentTurns []string) (*Goal, error)
}

// EventType identifies an engine event.
type EventType int

const (
	// EventGoalXP is the once-per-goal award on completion.
	EventGoalXP EventType = iota
	// EventTurnXP is the per-turn partial award for an unmet attempt.
	EventTurnXP
	// EventGoalSeeded fires when a new goal becomes active.
	EventGoalSeeded
)

// Event is delivered through the OnEvent callback.
type Event struct {
	Type    EventType
	Goal    *Goal
	XP      int
	Verdict *Verdict
}

// Engine holds exactly one active goal and serializes its evaluations.
type Engine struct {
	// Evaluator judges utterances. Required.
	Evaluator Evaluator

	// Store persists progress. Required.
	Store Store

	// Seeder produces follow-up goals. Optional; without one the
	// completed goal simply stays completed.
	Seeder Seeder

	// Policy defaults to DefaultXPPolicy when zero.
	Policy XPPolicy

	// Pronunciation mirrors the settings flag feeding the XP bonus.
	// Set at construction; use SetPronunciation for later changes.
	Pronunciation bool

	// OnEvent, if set, receives XP and seeding events from background
	// goroutines.
	OnEvent func(Event)

	// EvalTimeout bounds one evaluation request. Default 30s.
	EvalTimeout time.Duration

	mu     sync.Mutex
	goal   *Goal
	busy   bool
	recent []string

	wg sync.WaitGroup
}

// Seed installs a new active goal. The XP-awarded latch resets only when
// the goal id actually changes.
func (e *Engine) Seed(g *Goal) {
	e.mu.Lock()
	if e.goal != nil && e.goal.ID == g.ID {
		e.mu.Unlock()
		return
	}
	now := jsontime.Now()
	cp := g.clone()
	cp.Attempts = 0
	cp.Completed = false
	cp.XPAwarded = false
	cp.CreatedAt = now
	cp.UpdatedAt = now
	e.goal = cp
	e.mu.Unlock()

	if err := e.Store.SaveGoal(context.Background(), cp.clone()); err != nil {
		slog.Warn("goal: persist seeded goal failed", "goal_id", cp.ID, "error", err)
	}
	e.emit(Event{Type: EventGoalSeeded, Goal: cp.clone()})
}

// SetPronunciation updates the pronunciation-practice flag.
func (e *Engine) SetPronunciation(v bool) {
	e.mu.Lock()
	e.Pronunciation = v
	e.mu.Unlock()
}

// Active returns a copy of the active goal, or nil.
func (e *Engine) Active() *Goal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.goal == nil {
		return nil
	}
	return e.goal.clone()
}

// HandleUserTurn records a finalized user utterance against the active
// goal. The attempt counter is incremented and persisted synchronously;
// evaluation runs in the background. Overlapping calls while an evaluation
// is in flight still count the attempt but do not start a second
// evaluation.
func (e *Engine) HandleUserTurn(ctx context.Context, utterance string) {
	e.mu.Lock()
	if e.goal == nil || e.goal.Completed {
		e.mu.Unlock()
		return
	}
	e.goal.Attempts++
	e.goal.UpdatedAt = jsontime.Now()
	e.recent = append(e.recent, utterance)
	if len(e.recent) > 10 {
		e.recent = e.recent[len(e.recent)-10:]
	}
	snapshot := e.goal.clone()
	start := !e.busy
	if start {
		e.busy = true
	}
	e.mu.Unlock()

	if err := e.Store.SaveGoal(ctx, snapshot); err != nil {
		slog.Warn("goal: persist attempt failed", "goal_id", snapshot.ID, "error", err)
	}
	if !start {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.evaluate(snapshot, utterance)
	}()
}

// Wait blocks until background evaluations and seedings settle.
// Intended for teardown and tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) evaluate(snapshot *Goal, utterance string) {
	defer func() {
		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()
	}()

	timeout := e.EvalTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	verdict, err := e.Evaluator.Evaluate(ctx, snapshot, utterance)
	if err != nil {
		// The attempt is already persisted; releasing busy lets a later
		// turn retry.
		slog.Warn("goal: evaluation failed", "goal_id", snapshot.ID, "error", err)
		return
	}

	if !verdict.Met {
		xp := e.policy().PartialXP(verdict.Confidence)
		e.emit(Event{Type: EventTurnXP, Goal: snapshot.clone(), XP: xp, Verdict: verdict})
		return
	}

	e.mu.Lock()
	if e.goal == nil || e.goal.ID != snapshot.ID || e.goal.XPAwarded {
		// A duplicate or stale evaluation resolved after the award.
		e.mu.Unlock()
		return
	}
	e.goal.XPAwarded = true
	e.goal.Completed = true
	e.goal.UpdatedAt = jsontime.Now()
	completed := e.goal.clone()
	recent := append([]string(nil), e.recent...)
	pronunciation := e.Pronunciation
	e.mu.Unlock()

	xp := e.policy().SuccessXP(completed.Attempts, pronunciation)
	if err := e.Store.RecordCompletion(ctx, completed, xp); err != nil {
		slog.Warn("goal: persist completion failed", "goal_id", completed.ID, "error", err)
	}
	e.emit(Event{Type: EventGoalXP, Goal: completed, XP: xp, Verdict: verdict})

	if e.Seeder == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		seedCtx, seedCancel := context.WithTimeout(context.Background(), timeout)
		defer seedCancel()
		next, err := e.Seeder.Next(seedCtx, completed, recent)
		if err != nil || next == nil {
			slog.Warn("goal: seeding next goal failed", "error", err)
			return
		}
		e.Seed(next)
	}()
}

func (e *Engine) policy() XPPolicy {
	if e.Policy == (XPPolicy{}) {
		return DefaultXPPolicy()
	}
	return e.Policy
}

func (e *Engine) emit(ev Event) {
	if e.OnEvent != nil {
		e.OnEvent(ev)
	}
}
