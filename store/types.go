package store

import (
	"context"
	"time"
)

// Status describes the connection status of a session.
type Status string

const (
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
	StatusStopped Status = "stopped"
)

// Session is the persisted liveness record of a session.
type Session struct {
	ID         string    `json:"id"`
	LastPingAt time.Time `json:"lastPingAt"`
	Status     Status    `json:"status"`
}

// Store is the narrow read/update surface over persisted sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Session, bool, error)
	Touch(ctx context.Context, id string, at time.Time) error
	SetStatus(ctx context.Context, id string, status Status) error
}
