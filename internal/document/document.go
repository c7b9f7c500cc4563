package document

import "context"

// Side identifies which face of the identity document an image shows.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// Fields holds the structured data extracted from one side of an identity
// document. The orchestrator treats it as opaque and passes it through to
// the caller unmodified.
type Fields map[string]interface{}

// RejectionError is returned when the document service explicitly rejects an
// image: poor quality, card frame not found, unreadable text.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// Client exposes the subset of the document processing service used by the
// verification flow.
type Client interface {
	Extract(ctx context.Context, imageBytes []byte, side Side) (Fields, error)
}
