package flowengine

import (
	"errors"
	"fmt"
)

// Error type constants for classification. Configuration and handler errors
// are fatal to an execution; callback errors are reported to the caller as
// structured rejections and never fail a stored execution.
const (
	// ErrorTypeConfiguration covers invalid graphs: missing start node,
	// unknown node types, no handler registered for a dispatched type.
	ErrorTypeConfiguration = "configuration_error"

	// ErrorTypeHandler covers failures reported by (or panics escaping
	// from) a node handler.
	ErrorTypeHandler = "handler_error"

	// ErrorTypeCallback covers protocol violations on the callback path:
	// unknown keys, replays, expired records.
	ErrorTypeCallback = "callback_error"

	// ErrorTypeSerialization covers state snapshots that fail to encode
	// or decode. These are fatal: proceeding would silently lose
	// resumability.
	ErrorTypeSerialization = "serialization_error"
)

// Callback protocol rejections. These are sentinel errors so transports can
// map them to not-found vs conflict responses.
var (
	// ErrCallbackNotFound is returned when no callback record exists for a key.
	ErrCallbackNotFound = errors.New("callback not found")

	// ErrCallbackConflict is returned when a callback record exists but is
	// no longer in waiting status.
	ErrCallbackConflict = errors.New("callback already processed")

	// ErrCallbackExpired is returned when a callback record exists but its
	// expiry has passed.
	ErrCallbackExpired = errors.New("callback expired")

	// ErrExecutionNotFound is returned by execution stores for unknown IDs.
	ErrExecutionNotFound = errors.New("execution not found")
)

// FlowError is a classified engine error. It supports Go's error wrapping
// patterns via Unwrap.
type FlowError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap supports errors.Is and errors.As against the wrapped error.
func (e *FlowError) Unwrap() error {
	return e.Wrapped
}

// NewConfigurationError creates a fatal configuration error.
func NewConfigurationError(cause string) *FlowError {
	return &FlowError{Type: ErrorTypeConfiguration, Cause: cause}
}

// NewHandlerError wraps a node handler failure.
func NewHandlerError(nodeID string, err error) *FlowError {
	return &FlowError{
		Type:    ErrorTypeHandler,
		Cause:   fmt.Sprintf("node %q: %s", nodeID, err.Error()),
		Wrapped: err,
	}
}

// NewSerializationError wraps a snapshot encode/decode failure.
func NewSerializationError(cause string, err error) *FlowError {
	return &FlowError{
		Type:    ErrorTypeSerialization,
		Cause:   fmt.Sprintf("%s: %s", cause, err.Error()),
		Wrapped: err,
	}
}

// ErrorType classifies an arbitrary error. Unclassified errors are treated
// as handler errors, since handler I/O is the only place arbitrary errors
// enter the engine.
func ErrorType(err error) string {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Type
	}
	if errors.Is(err, ErrCallbackNotFound) || errors.Is(err, ErrCallbackConflict) || errors.Is(err, ErrCallbackExpired) {
		return ErrorTypeCallback
	}
	return ErrorTypeHandler
}
