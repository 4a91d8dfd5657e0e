package push

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed dispatch requests (HTTP 400).
	ErrValidation = errors.New("invalid push request")

	// ErrDependency marks failures of the token store or the signer (HTTP 500).
	ErrDependency = errors.New("push dependency failed")

	// ErrGatewayUnconfigured is returned by NewSigner when no signing key is
	// set. The dispatcher treats a missing signer as a soft degrade.
	ErrGatewayUnconfigured = errors.New("push gateway not configured")

	// ErrInvalidKey is returned when the signing key cannot be decoded or is
	// not a P-256 ECDSA key.
	ErrInvalidKey = errors.New("invalid signing key")
)

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid push request: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DependencyError wraps a failure of a collaborator.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the category and the cause.
func (e *DependencyError) Unwrap() []error {
	return []error{ErrDependency, e.Err}
}
