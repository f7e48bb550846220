package audit

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store errors.
var (
	ErrNotFound          = errors.New("audit not found")
	ErrAlreadyExists     = errors.New("audit already exists")
	ErrInvalidTransition = errors.New("invalid audit status transition")
)

// Queue errors.
var (
	// ErrQueueClosed is returned by a Queue that will never yield another item.
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueFull is returned by Enqueue when no slot is free.
	ErrQueueFull = errors.New("queue full")
)

// Store persists Audit records.
type Store interface {
	CreateAudit(ctx context.Context, a Audit) error
	// UpdateAudit overwrites the record. It returns ErrInvalidTransition when
	// the stored status may not move to a.Status.
	UpdateAudit(ctx context.Context, a Audit) error
	GetAudit(ctx context.Context, id string) (Audit, error)
	DeleteAudit(ctx context.Context, id string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes lifecycle events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for background audits.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for blob paths and cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces audit IDs.
type IDGenerator interface {
	NewID() (string, error)
}
