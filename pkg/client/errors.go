package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the
// given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// Kind is the coarse failure category an operation boundary reports to the
// user. Every error that escapes this package maps to exactly one kind.
type Kind int

const (
	// KindNetwork covers timeouts and connectivity failures.
	KindNetwork Kind = iota
	// KindAuth covers nonce, signature and token verification failures (401).
	KindAuth
	// KindValidation covers malformed payloads rejected by the server (400, 422).
	KindValidation
	// KindNotFound covers missing events, activities and NFTs (404).
	KindNotFound
	// KindPermission covers role-gated actions without privilege (403).
	KindPermission
	// KindServer covers everything else the server refuses.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindPermission:
		return "permission"
	default:
		return "server"
	}
}

// KindOf classifies an error returned by this package.
func KindOf(err error) Kind {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusUnauthorized:
			return KindAuth
		case http.StatusForbidden:
			return KindPermission
		case http.StatusNotFound:
			return KindNotFound
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return KindValidation
		default:
			return KindServer
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork
	}
	return KindServer
}
