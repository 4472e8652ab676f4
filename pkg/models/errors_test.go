package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"connection", NewConnectionError("GET /metrics", cause), IsConnection},
		{"unsupported", NewUnsupportedCapabilityError(CapabilityCPUUsage), IsUnsupportedCapability},
		{"configuration", NewConfigurationError("bad %s", "url"), IsConfiguration},
		{"internal", NewInternalError("render", cause), IsInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("poll: %w", tt.err)
			if !tt.is(wrapped) {
				t.Errorf("kind check failed for %v", wrapped)
			}
			for _, other := range tests {
				if other.name != tt.name && other.is(wrapped) {
					t.Errorf("%s error also matched %s", tt.name, other.name)
				}
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := NewConnectionError("fetch", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach the cause")
	}
	if got, want := err.Error(), "connection: fetch: timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDetail(t *testing.T) {
	if got := Detail(NewConfigurationError("name is required")); got != "name is required" {
		t.Errorf("Detail = %q", got)
	}
	if got := Detail(NewConnectionError("fetch", errors.New("refused"))); got != "fetch: refused" {
		t.Errorf("Detail = %q", got)
	}
	if got := Detail(errors.New("plain")); got != "plain" {
		t.Errorf("Detail = %q", got)
	}
}
