// Package verrors defines the error taxonomy shared across the VerusPulse
// core. Callers match on concrete types with errors.As, or use the helper
// predicates when only the category matters.
package verrors

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError indicates the node could not be reached at all: timeout,
// connection refused, or exhausted retries. Transport failures are retryable.
type TransportError struct {
	Endpoint string
	Cause    error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("TRANSPORT_ERROR: node unreachable at %s: %v", e.Endpoint, e.Cause)
	}
	return fmt.Sprintf("TRANSPORT_ERROR: node unreachable: %v", e.Cause)
}

// Unwrap returns the underlying cause
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a transport error for an endpoint
func NewTransportError(endpoint string, cause error) *TransportError {
	return &TransportError{Endpoint: endpoint, Cause: cause}
}

// RPCError carries a structured error payload returned by the node. It is
// deterministic for a given request and therefore never retried.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC_ERROR: %s failed with code %d: %s", e.Method, e.Code, e.Message)
}

// NewRPCError creates an RPC error from a node error payload
func NewRPCError(method string, code int, message string) *RPCError {
	return &RPCError{Method: method, Code: code, Message: message}
}

// NotFoundError indicates an identity or transaction is absent. Read paths
// that can degrade gracefully convert it to a zero-valued result instead.
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("NOT_FOUND: %s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ScanConflictError indicates a scan is already in progress for an identity.
// The API boundary treats it as a no-op success, not a failure.
type ScanConflictError struct {
	Address string
}

// Error implements the error interface
func (e *ScanConflictError) Error() string {
	return fmt.Sprintf("SCAN_CONFLICT: scan already in progress for %s", e.Address)
}

// NewScanConflictError creates a scan conflict error
func NewScanConflictError(address string) *ScanConflictError {
	return &ScanConflictError{Address: address}
}

// PersistenceError indicates the durable store failed. Non-critical paths
// (best-effort caching) log and swallow it; hot paths surface it.
type PersistenceError struct {
	Operation string
	Cause     error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("PERSISTENCE_ERROR: %s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying cause
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// NewPersistenceError creates a persistence error
func NewPersistenceError(operation string, cause error) *PersistenceError {
	return &PersistenceError{Operation: operation, Cause: cause}
}

// IsTransport reports whether err is (or wraps) a TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRPC reports whether err is (or wraps) an RPCError
func IsRPC(err error) bool {
	var re *RPCError
	return errors.As(err, &re)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsScanConflict reports whether err is (or wraps) a ScanConflictError
func IsScanConflict(err error) bool {
	var sc *ScanConflictError
	return errors.As(err, &sc)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsRetryable reports whether err is worth retrying. Only transport-level
// failures qualify; a well-formed node error is deterministic.
func IsRetryable(err error) bool {
	return IsTransport(err)
}

// HTTPStatusCode maps an error to the HTTP status the API boundary returns
func HTTPStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case IsScanConflict(err):
		// Surfaced as a no-op success at the API boundary.
		return http.StatusOK
	case IsRPC(err):
		return http.StatusBadGateway
	case IsTransport(err):
		return http.StatusGatewayTimeout
	case IsPersistence(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
