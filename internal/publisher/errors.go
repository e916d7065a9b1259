package publisher

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a publish failure. Every error leaving this package maps to
// one of these; raw platform errors never reach the API boundary.
type Kind string

const (
	KindCredentialsMissing  Kind = "credentials_missing"
	KindPermissionDenied    Kind = "permission_denied"
	KindRateLimited         Kind = "rate_limited"
	KindTransientNetwork    Kind = "transient_network"
	KindUnsupportedPlatform Kind = "unsupported_platform"
	KindNotFound            Kind = "not_found"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified errors
// are treated as transient so the queue's attempt budget governs them.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransientNetwork
}

// Retryable reports whether another attempt could plausibly succeed without
// caller intervention.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransientNetwork:
		return true
	}
	return false
}

func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindPermissionDenied
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindTransientNetwork
	}
}
