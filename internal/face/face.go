package face

import "context"

// ChallengeKind names one prompted action in an active-liveness sequence.
type ChallengeKind string

const (
	ChallengeFront    ChallengeKind = "front"
	ChallengeSmile    ChallengeKind = "smile"
	ChallengeSurprise ChallengeKind = "surprise"
	ChallengeBlink    ChallengeKind = "blink"
	ChallengeLeft     ChallengeKind = "left"
	ChallengeRight    ChallengeKind = "right"

	// ChallengeDone marks a completed sequence. It is never evaluated.
	ChallengeDone ChallengeKind = "DONE"
)

// RandomPool lists the kinds eligible for random selection when building a
// challenge sequence. The "front" kind is always placed first explicitly so
// that a frontal reference frame can be captured.
var RandomPool = []ChallengeKind{
	ChallengeSmile,
	ChallengeSurprise,
	ChallengeBlink,
	ChallengeLeft,
	ChallengeRight,
}

// CombinedResult is the outcome of the passive-liveness plus face-match check
// performed on a fresh selfie against the stored document image.
type CombinedResult struct {
	LivenessPassed bool
	FaceVerified   bool
	Reason         string
}

// MatchResult is the outcome of a one-to-one face comparison. Error carries a
// collaborator-reported failure such as "no face found"; it is distinct from
// transport failures, which surface as Go errors.
type MatchResult struct {
	Verified bool
	Distance float64
	Error    string
}

// RejectionError is returned when the face service explicitly rejects a
// submission (liveness failed or faces did not match).
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// BlinkState accumulates per-frame eye measurements for one blink challenge.
// It is owned by the challenge sequencer and round-trips through
// EvaluateChallenge on every frame; the counter depends on the full frame
// history, so each submitted frame must be evaluated exactly once, in order.
type BlinkState struct {
	Target         int `json:"target"`
	ConsecutiveLow int `json:"consecutive_low"`
	Total          int `json:"total"`
}

// Client exposes the subset of the face service used by the verification flow
// and the active-liveness sequencer.
type Client interface {
	// CombinedCheck runs passive liveness on the selfie and matches it
	// against the document image in one call. A *RejectionError means the
	// service evaluated the images and said no.
	CombinedCheck(ctx context.Context, idImage, selfieImage []byte) (*CombinedResult, error)

	// Match compares two face images. Service-side evaluation failures are
	// reported inside MatchResult.Error, not as a Go error.
	Match(ctx context.Context, imageA, imageB []byte) (*MatchResult, error)

	// EvaluateChallenge judges whether a single frame satisfies the given
	// challenge. For blink challenges the caller passes the same BlinkState
	// on every frame; the client updates it in place.
	EvaluateChallenge(ctx context.Context, frame []byte, kind ChallengeKind, blink *BlinkState) (bool, error)
}
