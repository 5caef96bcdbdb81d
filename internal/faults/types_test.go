package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := NewTypedError(ConflictError, "server moved ahead", nil)
	if !IsCategory(err, ConflictError) {
		t.Fatalf("expected conflict category match")
	}
	if IsCategory(err, TransportError) {
		t.Fatalf("expected transport category mismatch")
	}

	wrapped := errors.New("wrap: " + err.Error())
	if IsCategory(wrapped, ConflictError) {
		t.Fatalf("plain wrapped string error must not match typed category")
	}

	joined := errors.Join(err, errors.New("other"))
	if !IsCategory(joined, ConflictError) {
		t.Fatalf("expected category match through errors.Join")
	}

	if !IsCategory(fmt.Errorf("failed to push: %w", err), ConflictError) {
		t.Fatalf("expected category match through fmt.Errorf wrapping")
	}
}

func TestCategoryOf(t *testing.T) {
	t.Parallel()

	if got := CategoryOf(NewTypedError(ParseError, "bad yaml", nil)); got != ParseError {
		t.Fatalf("expected ParseError, got %s", got)
	}
	if got := CategoryOf(errors.New("boom")); got != InternalError {
		t.Fatalf("expected InternalError for untyped error, got %s", got)
	}
}

func TestTypedErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewTypedError(TransportError, "failed to get Deployment ns/foo", cause)
	if err.Error() != "failed to get Deployment ns/foo: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if NewTypedError(NotFoundError, "", nil).Error() != "NotFoundError" {
		t.Fatalf("expected category as fallback message")
	}
}
