package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/example/ekyc/internal/face"
)

const defaultChallengeTimeout = 30 * time.Second

// ErrSequenceFinished is returned when a frame is submitted to a sequencer
// that has already reported success or failed. Finished instances must be
// discarded by the owner, not reused.
var ErrSequenceFinished = errors.New("challenge sequence already finished")

// Outcome is the caller-visible state of a challenge run after a frame.
type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeSuccess    Outcome = "success"
	OutcomeFailed     Outcome = "failed"
)

// Result describes what happened to one submitted frame.
type Result struct {
	Status      Outcome `json:"status"`
	Correct     bool    `json:"correct"`
	Instruction string  `json:"instruction,omitempty"`
	Reason      string  `json:"reason,omitempty"`

	// FrontalFrame is the reference frame captured while the user faced the
	// camera. Populated only on success.
	FrontalFrame []byte `json:"-"`
}

// Config tunes a sequencer. Zero values select production defaults; tests
// inject a fixed clock, seeded randomness, and explicit sequences.
type Config struct {
	Sequence []face.ChallengeKind
	Timeout  time.Duration
	Now      func() time.Time
	Rand     *rand.Rand
}

// Sequencer drives one active-liveness run: it presents an instruction,
// judges submitted frames against the current challenge, advances on
// satisfaction, and fails when the per-challenge deadline lapses. The
// deadline is checked lazily on the next submitted frame; there is no
// background timer.
type Sequencer struct {
	// mu serializes frames; the blink counter depends on frame order.
	mu       sync.Mutex
	faces    face.Client
	sequence []face.ChallengeKind
	index    int

	current     face.ChallengeKind
	instruction string
	blink       *face.BlinkState
	deadline    time.Time
	frontal     []byte

	timeout time.Duration
	now     func() time.Time
	rng     *rand.Rand
	done    bool
}

// NewSequencer builds a sequencer over the given evaluator. Without an
// explicit sequence it uses the standard one: look front, then two randomly
// drawn challenges.
func NewSequencer(faces face.Client, cfg Config) *Sequencer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(now().UnixNano()))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultChallengeTimeout
	}
	sequence := cfg.Sequence
	if len(sequence) == 0 {
		sequence = []face.ChallengeKind{
			face.ChallengeFront,
			face.RandomPool[rng.Intn(len(face.RandomPool))],
			face.RandomPool[rng.Intn(len(face.RandomPool))],
		}
	}

	s := &Sequencer{
		faces:    faces,
		sequence: sequence,
		timeout:  timeout,
		now:      now,
		rng:      rng,
	}
	s.activate(sequence[0])
	return s
}

// Instruction returns the prompt for the current challenge.
func (s *Sequencer) Instruction() string {
	return s.instruction
}

// Sequence returns the ordered challenge kinds this run was built with.
func (s *Sequencer) Sequence() []face.ChallengeKind {
	out := make([]face.ChallengeKind, len(s.sequence))
	copy(out, s.sequence)
	return out
}

// CurrentIndex returns the position in the sequence. It never decreases and
// never exceeds the sequence length.
func (s *Sequencer) CurrentIndex() int {
	return s.index
}

// Done reports whether the run has reached a terminal outcome.
func (s *Sequencer) Done() bool {
	return s.done
}

// ProcessFrame evaluates one submitted frame against the current challenge.
// Blink challenges are stateful: every frame is fed to the counter exactly
// once, in submission order. An evaluator transport error is returned as-is
// and does not consume the frame's place in the run.
func (s *Sequencer) ProcessFrame(ctx context.Context, frame []byte) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil, ErrSequenceFinished
	}

	// The frontal reference frame is captured at the first opportunity,
	// before any evaluation.
	if s.current == face.ChallengeFront && s.frontal == nil {
		s.frontal = frame
	}

	if s.now().After(s.deadline) {
		s.done = true
		return &Result{
			Status: OutcomeFailed,
			Reason: fmt.Sprintf("challenge %q timed out", s.current),
		}, nil
	}

	satisfied, err := s.faces.EvaluateChallenge(ctx, frame, s.current, s.blink)
	if err != nil {
		return nil, err
	}
	if !satisfied {
		return &Result{Status: OutcomeInProgress, Correct: false, Instruction: s.instruction}, nil
	}

	s.index++
	if s.index == len(s.sequence) {
		s.current = face.ChallengeDone
		s.deadline = s.now().Add(s.timeout)
		s.done = true
		return &Result{Status: OutcomeSuccess, Correct: true, FrontalFrame: s.frontal}, nil
	}

	s.activate(s.sequence[s.index])
	return &Result{Status: OutcomeInProgress, Correct: true, Instruction: s.instruction}, nil
}

// activate makes kind the current challenge: fresh instruction, fresh
// deadline, and for blink challenges a fresh counter with a random target.
func (s *Sequencer) activate(kind face.ChallengeKind) {
	s.current = kind
	s.blink = nil
	if kind == face.ChallengeBlink {
		s.blink = &face.BlinkState{Target: 2 + s.rng.Intn(3)}
	}
	s.instruction = s.instructionFor(kind)
	s.deadline = s.now().Add(s.timeout)
}

func (s *Sequencer) instructionFor(kind face.ChallengeKind) string {
	switch kind {
	case face.ChallengeFront:
		return "Please look straight at the camera"
	case face.ChallengeSmile, face.ChallengeSurprise:
		return fmt.Sprintf("Please show the expression: %s", kind)
	case face.ChallengeLeft:
		return "Please turn your face to the left"
	case face.ChallengeRight:
		return "Please turn your face to the right"
	case face.ChallengeBlink:
		return fmt.Sprintf("Please blink your eyes %d times", s.blink.Target)
	}
	return "Unknown challenge"
}
