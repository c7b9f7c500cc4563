package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ekyc/internal/face"
)

type countingObserver struct {
	outcomes []Outcome
}

func (o *countingObserver) ChallengeOutcome(outcome Outcome) {
	o.outcomes = append(o.outcomes, outcome)
}

func TestManagerRoutesFramesToSessionRun(t *testing.T) {
	ctx := context.Background()
	m := NewManager(alwaysSatisfied(), nil, ManagerConfig{Seed: 3})

	instruction := m.Start("session-a")
	if instruction == "" {
		t.Fatal("expected an instruction from Start")
	}

	var last *Result
	for i := 0; i < 3; i++ {
		res, err := m.Submit(ctx, "session-a", []byte("frame"))
		if err != nil {
			t.Fatal(err)
		}
		last = res
	}
	if last.Status != OutcomeSuccess {
		t.Fatalf("status = %s, want success after three satisfied frames", last.Status)
	}
}

func TestManagerSubmitWithoutStart(t *testing.T) {
	m := NewManager(alwaysSatisfied(), nil, ManagerConfig{Seed: 3})

	_, err := m.Submit(context.Background(), "unknown", []byte("frame"))
	if !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("err = %v, want ErrNoActiveChallenge", err)
	}
}

func TestManagerRemovesFinishedRun(t *testing.T) {
	ctx := context.Background()
	observer := &countingObserver{}
	m := NewManager(alwaysSatisfied(), nil, ManagerConfig{Seed: 3, Observer: observer})

	m.Start("session-a")
	for i := 0; i < 3; i++ {
		if _, err := m.Submit(ctx, "session-a", []byte("frame")); err != nil {
			t.Fatal(err)
		}
	}

	_, err := m.Submit(ctx, "session-a", []byte("frame"))
	if !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("err after success = %v, want ErrNoActiveChallenge", err)
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != OutcomeSuccess {
		t.Errorf("observer saw %v, want one success", observer.outcomes)
	}
}

func TestManagerRemovesTimedOutRun(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	observer := &countingObserver{}
	m := NewManager(alwaysSatisfied(), nil, ManagerConfig{
		Seed:     3,
		Observer: observer,
		Timeout:  30 * time.Second,
		Now:      clock.Now,
	})

	m.Start("session-a")
	clock.Advance(31 * time.Second)

	res, err := m.Submit(ctx, "session-a", []byte("late"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != OutcomeFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}

	if _, err := m.Submit(ctx, "session-a", []byte("frame")); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("err after failure = %v, want ErrNoActiveChallenge", err)
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != OutcomeFailed {
		t.Errorf("observer saw %v, want one failure", observer.outcomes)
	}
}

func TestManagerRestartDiscardsPreviousRun(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewManager(alwaysSatisfied(), nil, ManagerConfig{
		Seed:    3,
		Timeout: 30 * time.Second,
		Now:     clock.Now,
	})

	m.Start("session-a")
	clock.Advance(31 * time.Second)

	// Restarting resets the deadline, so the stale run's timeout is gone.
	m.Start("session-a")
	res, err := m.Submit(ctx, "session-a", []byte("frame"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != OutcomeInProgress {
		t.Fatalf("status = %s, want in_progress on the fresh run", res.Status)
	}
}

func TestManagerAbandon(t *testing.T) {
	m := NewManager(alwaysSatisfied(), nil, ManagerConfig{Seed: 3})

	m.Start("session-a")
	if !m.Abandon("session-a") {
		t.Fatal("abandon reported no active run")
	}
	if m.Abandon("session-a") {
		t.Fatal("second abandon reported an active run")
	}

	_, err := m.Submit(context.Background(), "session-a", []byte("frame"))
	if !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("err = %v, want ErrNoActiveChallenge", err)
	}
}

func TestManagerIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	m := NewManager(alwaysSatisfied(), nil, ManagerConfig{Seed: 3})

	m.Start("session-a")
	m.Start("session-b")

	for i := 0; i < 3; i++ {
		if _, err := m.Submit(ctx, "session-a", []byte("frame")); err != nil {
			t.Fatal(err)
		}
	}

	// Finishing one session's run leaves the other untouched.
	res, err := m.Submit(ctx, "session-b", []byte("frame"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != OutcomeInProgress {
		t.Fatalf("status = %s, want in_progress for the untouched session", res.Status)
	}
}

var _ face.Client = (*fakeEvaluator)(nil)
