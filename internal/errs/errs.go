// Package errs classifies errors crossing a component boundary into the
// kinds the control loop branches on, so callers never need to match on
// error strings.
package errs

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Kind is one of the error categories the control loop distinguishes.
type Kind string

const (
	TransientExternal Kind = "TransientExternal"
	PermissionDenied  Kind = "PermissionDenied"
	NotFound          Kind = "NotFound"
	InvalidConfig     Kind = "InvalidConfig"
	IntegrityViolation Kind = "IntegrityViolation"
	InternalAssertion Kind = "InternalAssertion"
	Unknown           Kind = "Unknown"
)

// Classified wraps an error with its Kind, attached once at the boundary.
type Classified struct {
	Kind Kind
	Err  error
}

func (c *Classified) Error() string { return fmt.Sprintf("%s: %v", c.Kind, c.Err) }
func (c *Classified) Unwrap() error { return c.Err }

// Wrap attaches kind to err, unless err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Kind: kind, Err: err}
}

// KindOf extracts the Kind from a classified error, or Unknown.
func KindOf(err error) Kind {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	return Unknown
}

// Classify inspects a raw Kubernetes/HTTP-origin error and returns the
// Kind it belongs to. Used at the Metrics Client boundary so that every
// error leaving it already carries a Kind.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}
	switch {
	case apierrors.IsNotFound(err):
		return NotFound
	case apierrors.IsForbidden(err), apierrors.IsUnauthorized(err):
		return PermissionDenied
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err), apierrors.IsServiceUnavailable(err),
		apierrors.IsTooManyRequests(err), apierrors.IsInternalError(err):
		return TransientExternal
	default:
		return TransientExternal
	}
}

// IsNotFound reports whether err (raw or Classified) denotes a missing
// HPA, Deployment, or Pod.
func IsNotFound(err error) bool {
	return KindOf(Wrap(Classify(err), err)) == NotFound || apierrors.IsNotFound(err)
}

var (
	// ErrCircuitOpen is returned by the Metrics Client when the breaker
	// for a target is open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrDegraded marks a TransientExternal escalation after retries and
	// circuit-open: callers must fall back to last-known TSS values.
	ErrDegraded = errors.New("degraded: using last-known values")
)
