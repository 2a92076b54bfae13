package corerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategoryOfUnwrapsWrappedError(t *testing.T) {
	base := Transient("ingest.download", errors.New("read tcp: connection reset"))
	wrapped := fmt.Errorf("chapter 003: %w", base)

	if got := CategoryOf(wrapped); got != CategoryTransient {
		t.Fatalf("CategoryOf() = %q, want %q", got, CategoryTransient)
	}
}

func TestCategoryOfDefaultsToFatalForUncategorisedError(t *testing.T) {
	if got := CategoryOf(errors.New("boom")); got != CategoryFatal {
		t.Fatalf("CategoryOf() = %q, want %q", got, CategoryFatal)
	}
}

func TestErrorStringIncludesOpAndCategory(t *testing.T) {
	err := CameraRefused("recording.arm", errors.New("wired_usb control denied"))
	want := "recording.arm: camera_refused: wired_usb control denied"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestErrorStringWithoutUnderlyingError(t *testing.T) {
	err := New(CategoryIncoherentInput, "clipplan.include", nil)
	want := "clipplan.include: incoherent_input"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
