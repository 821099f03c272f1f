package backend

import (
	"context"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/ports"
)

// CleanupFunc releases the resources of a backend.
type CleanupFunc func() error

// BackendResult bundles the collaborators the services run on.
type BackendResult struct {
	Store ports.Store
	Blobs ports.BlobStore

	// AMQP is nil when event publishing is disabled or the broker was unreachable.
	AMQP *amqp.Client

	Cleanup CleanupFunc
}

// Events returns the publisher, or nil when AMQP is off. The explicit nil keeps
// a nil *amqp.Client from becoming a non-nil interface.
func (r *BackendResult) Events() ports.EventPublisher {
	if r.AMQP == nil {
		return nil
	}
	return r.AMQP
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation.
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Blob storage
	BlobDir       string
	PublicBaseURL string
	UploadTTL     time.Duration

	// AMQP, optional for every backend type
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of data backend.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
