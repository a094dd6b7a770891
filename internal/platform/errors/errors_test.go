package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := WithMetadata(CodeNotFound, "cutscene not found", map[string]string{"name": "intro"})
	if !stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(CodeNameConflict, "")) {
		t.Fatal("expected different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(CodeStorageTransaction, "save cutscene", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if got, want := err.Error(), "save cutscene: disk full"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeAlreadyPlaying, "already playing"))
	if got := CodeOf(err); got != CodeAlreadyPlaying {
		t.Fatalf("CodeOf = %q, want %q", got, CodeAlreadyPlaying)
	}
	if !HasCode(err, CodeAlreadyPlaying) {
		t.Fatal("expected HasCode")
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %q, want %q", got, CodeUnknown)
	}
	if HasCode(nil, CodeUnknown) {
		t.Fatal("nil must not carry a code")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		code Code
		want Kind
	}{
		{CodeAlreadyRecording, KindUser},
		{CodeAlreadyVisualizing, KindUser},
		{CodeNothingToCancel, KindUser},
		{CodeEmptyFrames, KindUser},
		{CodeStorageUnavailable, KindPersistence},
		{CodeStorageMalformed, KindPersistence},
		{CodeHostInteraction, KindHostInteraction},
		{CodeUnknown, KindInternal},
	}
	for _, tt := range tests {
		if got := tt.code.Kind(); got != tt.want {
			t.Fatalf("%s.Kind() = %v, want %v", tt.code, got, tt.want)
		}
	}
	if got := KindOf(Wrap(CodeStorageTransaction, "x", nil)); got != KindPersistence {
		t.Fatalf("KindOf = %v, want %v", got, KindPersistence)
	}
}
