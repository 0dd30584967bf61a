// Package backend builds the ledger storage and the optional posting
// publisher from configuration.
package backend

import (
	"context"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/ledger"
	"ledger/internal/services"
)

// CleanupFunc releases whatever CreateBackend opened.
type CleanupFunc func() error

// BackendResult contains the provider and the resources tied to it.
type BackendResult struct {
	Provider ledger.Provider

	// Publisher is nil when AMQP is not configured or the broker could not
	// be reached at startup.
	Publisher services.PostingPublisher

	// AMQP is the client behind Publisher, for consumers.
	AMQP *amqp.Client

	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath   string
	StorageTimeout time.Duration
	CacheTTL       time.Duration

	// An empty AMQPURL disables publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

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
