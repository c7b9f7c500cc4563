package logging

import (
	"errors"
	"testing"
)

func TestOperationErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewOperationError("workflow.submit_selfie", "abc-123", cause)

	if !errors.Is(err, cause) {
		t.Error("cause not reachable through errors.Is")
	}

	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatal("not an *OperationError")
	}
	if opErr.Operation != "workflow.submit_selfie" || opErr.SessionID != "abc-123" {
		t.Errorf("metadata = %q/%q", opErr.Operation, opErr.SessionID)
	}
}

func TestOperationErrorMessage(t *testing.T) {
	err := NewOperationError("workflow.submit_selfie", "abc-123", errors.New("boom"))
	want := "workflow.submit_selfie (session_id=abc-123): boom"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}

	err = NewOperationError("workflow.create_session", "", errors.New("boom"))
	want = "workflow.create_session: boom"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestNewOperationErrorNil(t *testing.T) {
	if err := NewOperationError("op", "id", nil); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}
