package challenge

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/ekyc/internal/face"
	"github.com/example/ekyc/internal/logging"
)

// ErrNoActiveChallenge is returned when a frame arrives for a session with
// no challenge run in progress.
var ErrNoActiveChallenge = errors.New("no active challenge for session")

// Observer receives challenge run outcomes, typically for metrics.
type Observer interface {
	ChallengeOutcome(outcome Outcome)
}

type nopChallengeObserver struct{}

func (nopChallengeObserver) ChallengeOutcome(Outcome) {}

// Manager keys active-liveness runs by session id. Starting a run discards
// any previous one for the same session; a run is removed as soon as it
// reports success or failed.
type Manager struct {
	mu       sync.Mutex
	runs     map[string]*Sequencer
	faces    face.Client
	observer Observer
	logger   *zap.Logger

	timeout time.Duration
	now     func() time.Time
	rng     *rand.Rand
}

// ManagerConfig tunes the manager. Zero values select production defaults.
type ManagerConfig struct {
	Observer Observer
	Timeout  time.Duration
	Now      func() time.Time
	Seed     int64
}

// NewManager builds a challenge manager over the given evaluator.
func NewManager(faces face.Client, logger *zap.Logger, cfg ManagerConfig) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopChallengeObserver{}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Manager{
		runs:     make(map[string]*Sequencer),
		faces:    faces,
		observer: observer,
		logger:   logger.Named("challenge_manager"),
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Start begins a fresh run for the session and returns the first
// instruction. Any existing run for the session is discarded.
func (m *Manager) Start(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := NewSequencer(m.faces, Config{
		Timeout: m.timeout,
		Now:     m.now,
		Rand:    rand.New(rand.NewSource(m.rng.Int63())),
	})
	m.runs[sessionID] = seq

	logging.WithOperation(m.logger, "challenge.start", sessionID).Info("challenge sequence started",
		zap.Any("sequence", seq.Sequence()))
	return seq.Instruction()
}

// Submit routes one frame to the session's active run. On success or failed
// the run is removed so the finished sequencer cannot be reused.
func (m *Manager) Submit(ctx context.Context, sessionID string, frame []byte) (*Result, error) {
	m.mu.Lock()
	seq, ok := m.runs[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoActiveChallenge
	}

	res, err := seq.ProcessFrame(ctx, frame)
	if err != nil {
		if errors.Is(err, ErrSequenceFinished) {
			// The run terminated earlier but removal raced with this frame.
			m.remove(sessionID, seq)
			return nil, ErrNoActiveChallenge
		}
		return nil, logging.NewOperationError("challenge.submit", sessionID, err)
	}

	if res.Status == OutcomeSuccess || res.Status == OutcomeFailed {
		m.remove(sessionID, seq)
		m.observer.ChallengeOutcome(res.Status)
		logging.WithOperation(m.logger, "challenge.submit", sessionID).Info("challenge sequence finished",
			zap.String("outcome", string(res.Status)), zap.String("reason", res.Reason))
	}
	return res, nil
}

// Abandon drops any active run for the session.
func (m *Manager) Abandon(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[sessionID]; !ok {
		return false
	}
	delete(m.runs, sessionID)
	return true
}

// remove deletes the run only if it is still the same instance; a restart
// may have replaced it while a frame was being evaluated.
func (m *Manager) remove(sessionID string, seq *Sequencer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.runs[sessionID]; ok && current == seq {
		delete(m.runs, sessionID)
	}
}
