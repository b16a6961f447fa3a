package vaulterr

import (
	"errors"
	"net/http"
	"testing"
)

func TestCode_MapsEachErrorType(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrMalformed("bad field"), http.StatusBadRequest},
		{ErrAuth("no vault open"), http.StatusUnauthorized},
		{ErrNotFound("asset", 42), http.StatusNotFound},
		{ErrRange(0, 10, 5), http.StatusRequestedRangeNotSatisfiable},
		{ErrInternal("op", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := Code(c.err); got != c.want {
			t.Errorf("Code(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestInternalError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := ErrInternal("some op", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should see through InternalError to its cause")
	}
}

func TestNotFoundError_Message(t *testing.T) {
	err := ErrNotFound("project", 7)
	want := "project 7 not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapError_PreservesCauseForErrorsIs(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := WrapError(cause, "writing chunk")
	if !errors.Is(wrapped, cause) {
		t.Error("WrapError should preserve the original error for errors.Is")
	}
}
