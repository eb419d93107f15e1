// Package store keeps the persisted session record touched for liveness
// bookkeeping: session id, last ping time and connection status.
//
// Writes are best effort. Callers never block session traffic on the store and
// report failures to error tracking instead of failing the session.
package store
