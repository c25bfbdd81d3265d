package types

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	e := NewError(ErrSessionClosed, "session is closed")
	if got := e.Error(); got != "[SESSION_CLOSED] session is closed" {
		t.Errorf("unexpected error string: %s", got)
	}

	cause := errors.New("storage down")
	e = NewError(ErrInternal, "append failed").WithCause(cause)
	if got := e.Error(); got != "[INTERNAL_ERROR] append failed: storage down" {
		t.Errorf("unexpected error string with cause: %s", got)
	}
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to match the cause")
	}
}

func TestError_Retryable(t *testing.T) {
	e := NewError(ErrEvaluatorUnavailable, "evaluator timed out").WithRetryable(true)
	if !IsRetryable(e) {
		t.Error("expected retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestGetErrorCode(t *testing.T) {
	if code := GetErrorCode(NewError(ErrUnknownAgent, "no such agent")); code != ErrUnknownAgent {
		t.Errorf("expected UNKNOWN_AGENT, got %s", code)
	}
	if code := GetErrorCode(errors.New("plain")); code != "" {
		t.Errorf("expected empty code, got %s", code)
	}
	if !IsCode(NewError(ErrNotFound, "x"), ErrNotFound) {
		t.Error("IsCode should match")
	}
}

func TestSessionState_Terminal(t *testing.T) {
	if SessionStateActive.Terminal() {
		t.Error("active is not terminal")
	}
	if !SessionStateExpired.Terminal() || !SessionStateClosed.Terminal() {
		t.Error("expired and closed are terminal")
	}
}
