package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatal_Classification(t *testing.T) {
	tests := []struct {
		code  string
		fatal bool
	}{
		{ErrCodeNavigation, true},
		{ErrCodeExtraction, true},
		{ErrCodeFilesystem, true},
		{ErrCodeBrowserCrash, true},
		{ErrCodeRobotsDenied, true},
		{ErrCodeInvalidInput, true},
		{ErrCodeInternal, true},
		{ErrCodeTimeout, false},
		{ErrCodeDownload, false},
		{ErrCodeStitch, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := NewCaptureError(tt.code, "boom", nil)
			if got := IsFatal(err); got != tt.fatal {
				t.Errorf("IsFatal(%s) = %v, want %v", tt.code, got, tt.fatal)
			}
		})
	}
}

func TestIsFatal_UnclassifiedError(t *testing.T) {
	if !IsFatal(errors.New("something unexpected")) {
		t.Error("errors without a code must be treated as fatal")
	}
}

func TestIsFatal_Wrapped(t *testing.T) {
	inner := NewCaptureError(ErrCodeTimeout, "slow page", nil)
	wrapped := fmt.Errorf("scroll pass: %w", inner)
	if IsFatal(wrapped) {
		t.Error("wrapping must not change the classification")
	}
}

func TestCaptureError_Message(t *testing.T) {
	err := NewCaptureError(ErrCodeNavigation, "navigate https://example.com", errors.New("connection refused"))
	want := "NAVIGATION_FAILED: navigate https://example.com: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := NewCaptureError(ErrCodeTimeout, "body never appeared", nil)
	if bare.Error() != "CAPTURE_TIMEOUT: body never appeared" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestCaptureError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := NewCaptureError(ErrCodeDownload, "fetch asset", inner)
	if !errors.Is(err, inner) {
		t.Error("CaptureError must unwrap to the original error")
	}
}

func TestCode(t *testing.T) {
	if got := Code(NewCaptureError(ErrCodeStitch, "x", nil)); got != ErrCodeStitch {
		t.Errorf("Code = %q, want %q", got, ErrCodeStitch)
	}
	if got := Code(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("Code of plain error = %q, want %q", got, ErrCodeInternal)
	}
}

func TestStage_StringAndTerminal(t *testing.T) {
	if StagePending.String() != "pending" || StageCompleted.String() != "completed" {
		t.Error("stage names out of order")
	}
	if Stage(99).String() != "unknown" {
		t.Errorf("out-of-range stage = %q, want unknown", Stage(99).String())
	}
	if !StageCompleted.Terminal() || !StageFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
	if StageSaving.Terminal() {
		t.Error("saving is not terminal")
	}
}

func TestStage_TextRoundTrip(t *testing.T) {
	for s := StagePending; s <= StageFailed; s++ {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", s, err)
		}
		var back Stage
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != s {
			t.Errorf("round trip %v -> %q -> %v", s, text, back)
		}
	}
	var s Stage
	if err := s.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("unknown stage name must error")
	}
}
