package schema

import (
	"errors"

	"github.com/viant/jsonrpc"
)

const (
	// BackendError is the JSON-RPC code reported when the execution backend fails.
	BackendError = -32010
	// ResponseTimeout is the JSON-RPC code reported when a correlated wait expires.
	ResponseTimeout = -32011
)

var (
	// ErrResponseTimeout is returned when a correlated wait does not complete in time.
	ErrResponseTimeout = errors.New("timeout waiting for response")
	// ErrConnectionClosed is returned by operations on a closed connection.
	ErrConnectionClosed = errors.New("session connection closed")
	// ErrSessionNotFound is returned when no live connection exists for a session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrBackendClosed is returned when the backend adapter was closed.
	ErrBackendClosed = errors.New("backend closed")
)

// NewBackendError creates a JSON-RPC error describing a backend failure
func NewBackendError(err error) *jsonrpc.Error {
	return jsonrpc.NewError(BackendError, "backend error: "+err.Error(), nil)
}

// NewTimeoutError creates a JSON-RPC error for an expired correlated wait
func NewTimeoutError(method string) *jsonrpc.Error {
	return jsonrpc.NewError(ResponseTimeout, ErrResponseTimeout.Error(), map[string]interface{}{"method": method})
}
