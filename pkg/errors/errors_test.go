package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := New(ErrorTypeAuth, "session expired").WithCode(401)
	want := "auth error (code 401): session expired"
	if e.Error() != want {
		t.Errorf("Expected %q, got %q", want, e.Error())
	}

	e = New(ErrorTypePersistence, "disk full")
	want = "persistence error: disk full"
	if e.Error() != want {
		t.Errorf("Expected %q, got %q", want, e.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	e := Wrap(ErrorTypeNetwork, cause, "fetch failed")

	if !stderrors.Is(e, cause) {
		t.Error("Expected wrapped error to match cause with errors.Is")
	}

	// Classification survives further wrapping
	outer := fmt.Errorf("account alice: %w", e)
	if TypeOf(outer) != ErrorTypeNetwork {
		t.Errorf("Expected network type through wrapping, got %s", TypeOf(outer))
	}
	if !IsType(outer, ErrorTypeNetwork) {
		t.Error("Expected IsType to see through wrapping")
	}
}

func TestTypeOfPlainError(t *testing.T) {
	if TypeOf(stderrors.New("plain")) != ErrorTypeUnknown {
		t.Error("Expected unknown type for plain error")
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeNetwork, ErrorTypeRateLimit}
	for _, et := range retryable {
		if !IsRetryable(et) {
			t.Errorf("Expected %s to be retryable", et)
		}
	}

	fatal := []ErrorType{
		ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing,
		ErrorTypeAnalysis, ErrorTypeUpload,
		ErrorTypeCorruptState, ErrorTypePersistence, ErrorTypeNotification,
	}
	for _, et := range fatal {
		if IsRetryable(et) {
			t.Errorf("Expected %s to not be retryable in process", et)
		}
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	cases := map[int]bool{
		0:   true,
		429: true,
		500: true,
		502: true,
		503: true,
		504: true,
		599: true,
		401: false,
		403: false,
		404: false,
		200: false,
	}
	for code, want := range cases {
		if got := IsRetryableStatusCode(code); got != want {
			t.Errorf("Status %d: expected retryable=%v, got %v", code, want, got)
		}
	}
}
