package session

import (
	"time"

	"github.com/example/ekyc/internal/document"
)

// Status is the lifecycle state of a verification session. Transitions are
// performed exclusively by the workflow engine.
type Status string

const (
	StatusAwaitingFrontID        Status = "AWAITING_FRONT_ID"
	StatusAwaitingBackID         Status = "AWAITING_BACK_ID"
	StatusAwaitingSelfie         Status = "AWAITING_SELFIE"
	StatusAwaitingActiveLiveness Status = "AWAITING_ACTIVE_LIVENESS"
	StatusActiveLivenessPassed   Status = "ACTIVE_LIVENESS_PASSED"
	StatusVerifying              Status = "VERIFYING"
	StatusApproved               Status = "APPROVED"
	StatusRejected               Status = "REJECTED"
	StatusManualReview           Status = "MANUAL_REVIEW"
)

// Terminal reports whether the status allows no further step submissions.
// VERIFYING counts as terminal here: once the final check is in flight the
// session may no longer be restarted or resubmitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusVerifying, StatusApproved, StatusRejected, StatusManualReview:
		return true
	}
	return false
}

// VerificationResult is the stored outcome of the final face match.
type VerificationResult struct {
	Verified bool    `json:"verified"`
	Distance float64 `json:"distance"`
	Error    string  `json:"error,omitempty"`
}

// Session is one verification attempt. Byte slices and field maps are
// replaced wholesale by the engine, never mutated in place, so snapshot
// copies of the struct are safe to hand out.
type Session struct {
	ID           string
	Status       Status
	FrontIDData  document.Fields
	BackIDData   document.Fields
	FrontIDImage []byte
	SelfieImage  []byte
	Result       *VerificationResult
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Snapshot is the caller-facing view of a session. Raw image payloads are
// reported as presence plus size rather than shipped back to the client.
type Snapshot struct {
	ID               string              `json:"session_id"`
	Status           Status              `json:"status"`
	FrontIDData      document.Fields     `json:"front_id_data,omitempty"`
	BackIDData       document.Fields     `json:"back_id_data,omitempty"`
	HasFrontIDImage  bool                `json:"has_front_id_image"`
	FrontIDImageSize int                 `json:"front_id_image_bytes"`
	HasSelfieImage   bool                `json:"has_selfie_image"`
	SelfieImageSize  int                 `json:"selfie_image_bytes"`
	Result           *VerificationResult `json:"verification_result,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Snapshot builds the sanitized view of the session.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:               s.ID,
		Status:           s.Status,
		FrontIDData:      s.FrontIDData,
		BackIDData:       s.BackIDData,
		HasFrontIDImage:  len(s.FrontIDImage) > 0,
		FrontIDImageSize: len(s.FrontIDImage),
		HasSelfieImage:   len(s.SelfieImage) > 0,
		SelfieImageSize:  len(s.SelfieImage),
		Result:           s.Result,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
