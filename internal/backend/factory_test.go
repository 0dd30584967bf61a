package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/amqp"
	"ledger/internal/config"
	"ledger/internal/core"
)

func newTestFactory(dial func(url, exchange, queue string) (*amqp.Client, error)) *DefaultFactory {
	f := NewFactory(nil).(*DefaultFactory)
	if dial != nil {
		f.dialAMQP = dial
	}
	return f
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:    "sqlite",
		SQLiteDBPath:   "/tmp/ledger.db",
		StorageTimeout: 2 * time.Second,
		CacheTTL:       time.Minute,
		AMQPURL:        "amqp://localhost/",
		AMQPExchange:   "ledger",
		AMQPQueue:      "income_posted",
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, 2*time.Second, cfg.StorageTimeout)
	assert.Equal(t, "income_posted", cfg.AMQPQueue)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://h/", AMQPExchange: "e"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, []string{"sqlite", "memory"}, GetBackendTypeStrings())
}

func TestCreateBackend_Memory(t *testing.T) {
	f := newTestFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	require.NotNil(t, res.Provider)
	assert.Nil(t, res.Publisher)
	assert.Nil(t, res.AMQP)

	ctx := context.Background()
	err = res.Provider.Ledger("alice").SetStartingBalance(ctx, core.Money{Cents: 1000})
	require.NoError(t, err)
	got, err := res.Provider.Ledger("alice").GetStartingBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Cents)

	assert.NoError(t, res.Cleanup())
}

func TestCreateBackend_SQLite(t *testing.T) {
	f := newTestFactory(nil)
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	res, err := f.CreateBackend(context.Background(), Config{
		Type:           SQLiteBackend,
		SQLiteDBPath:   path,
		StorageTimeout: time.Second,
		CacheTTL:       time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	ctx := context.Background()
	users, err := res.Provider.Users(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	store := res.Provider.Ledger("alice")
	require.NoError(t, store.SetStartingBalance(ctx, core.Money{Cents: 500}))
	got, err := store.GetStartingBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Cents)
}

func TestCreateBackend_InvalidConfig(t *testing.T) {
	f := newTestFactory(nil)
	_, err := f.CreateBackend(context.Background(), Config{Type: "sheets"})
	assert.Error(t, err)
}

func TestCreateBackend_UnreachableBrokerLeavesPublisherNil(t *testing.T) {
	f := newTestFactory(func(url, exchange, queue string) (*amqp.Client, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	res, err := f.CreateBackend(context.Background(), Config{
		Type:         MemoryBackend,
		AMQPURL:      "amqp://localhost:5672/",
		AMQPExchange: "ledger",
		AMQPQueue:    "income_posted",
	})
	require.NoError(t, err)
	// Must be an untyped nil so that "publisher != nil" checks hold.
	assert.True(t, res.Publisher == nil)
	assert.Nil(t, res.AMQP)
	assert.NoError(t, res.Cleanup())
}

func TestCreateBackend_AttachesPublisher(t *testing.T) {
	var dialed []string
	f := newTestFactory(func(url, exchange, queue string) (*amqp.Client, error) {
		dialed = append(dialed, url, exchange, queue)
		return &amqp.Client{}, nil
	})

	res, err := f.CreateBackend(context.Background(), Config{
		Type:         MemoryBackend,
		AMQPURL:      "amqp://localhost:5672/",
		AMQPExchange: "ledger",
		AMQPQueue:    "income_posted",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"amqp://localhost:5672/", "ledger", "income_posted"}, dialed)
	assert.NotNil(t, res.Publisher)
	assert.Same(t, res.AMQP, res.Publisher)
	assert.NoError(t, res.Cleanup())
}
