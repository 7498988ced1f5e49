package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or its TTL has elapsed.
var ErrNotFound = errors.New("store: key not found")

// Store defines the interface for TTL-aware key-value storage operations.
// It backs caches whose entries must disappear after their time-to-live.
type Store interface {
	// Get retrieves a value by key. Returns ErrNotFound when the key is
	// absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value by key. A zero ttl means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete deletes a value by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close closes the store connection
	Close() error

	// Health returns the health status of the store
	Health() HealthStatus
}

// HealthStatus represents the health status of a store
type HealthStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config represents common configuration for store drivers
type Config struct {
	// Address is the backend address (unused by the memory driver)
	Address string

	// Password for backends that require authentication
	Password string

	// Database selects the logical database for backends that support it
	Database int

	// KeyPrefix is prepended to every key, separated by a colon
	KeyPrefix string

	// Timeout bounds dial/read/write operations against the backend
	Timeout time.Duration
}

// DefaultConfig returns a default store configuration
func DefaultConfig() *Config {
	return &Config{
		Address:   "localhost:6379",
		KeyPrefix: "statuspulse",
		Timeout:   5 * time.Second,
	}
}
