package publisher

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := NewError(KindRateLimited, "slow down")
	if KindOf(err) != KindRateLimited {
		t.Fatalf("expected rate_limited, got %s", KindOf(err))
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if KindOf(wrapped) != KindRateLimited {
		t.Fatalf("expected kind to survive wrapping, got %s", KindOf(wrapped))
	}

	if KindOf(errors.New("plain")) != KindTransientNetwork {
		t.Fatalf("unclassified errors should default to transient")
	}
}

func TestRetryable(t *testing.T) {
	cases := map[Kind]bool{
		KindTransientNetwork:    true,
		KindRateLimited:         true,
		KindCredentialsMissing:  false,
		KindPermissionDenied:    false,
		KindUnsupportedPlatform: false,
		KindNotFound:            false,
	}

	for kind, want := range cases {
		if got := Retryable(NewError(kind, "x")); got != want {
			t.Fatalf("Retryable(%s) = %v, want %v", kind, got, want)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusUnauthorized:        KindPermissionDenied,
		http.StatusForbidden:           KindPermissionDenied,
		http.StatusNotFound:            KindNotFound,
		http.StatusTooManyRequests:     KindRateLimited,
		http.StatusInternalServerError: KindTransientNetwork,
		http.StatusBadGateway:          KindTransientNetwork,
	}

	for status, want := range cases {
		if got := classifyStatus(status); got != want {
			t.Fatalf("classifyStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(KindTransientNetwork, "HTTP request error", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("wrapped cause should be reachable via errors.Is")
	}
}
