/*
Package storage persists raw user record documents, one per id, in a flat key namespace.

The backends are the local filesystem (one <id>.json file per record), process memory,
an S3-compatible bucket, and a PostgreSQL table.
*/
package storage

import (
	"context"
	"fmt"

	"userdock/internal/app/db"
)

// Supported values for ServiceConfig.Driver.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverS3       = "s3"
	DriverPostgres = "postgres"
)

// RecordExt is the suffix of a stored record's file or object name.
const RecordExt = ".json"

// ServiceConfig holds the settings for every backend; only those of Driver are used.
type ServiceConfig struct {
	Driver string

	DataDir string

	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Prefix          string

	DatabaseDSN string
}

// RecordBackend stores opaque record documents keyed by user id.
// It performs no locking; callers serialize writes to one id themselves.
type RecordBackend interface {
	// Ensure makes the storage location exist. It is idempotent.
	Ensure(ctx context.Context) error

	// Get returns the document stored for id. found is false if there is none.
	Get(ctx context.Context, id string) (raw []byte, found bool, err error)

	// Put stores raw as the document for id, replacing any previous one.
	Put(ctx context.Context, id string, raw []byte) error

	// List returns the ids of all stored documents in the backend's enumeration order.
	List(ctx context.Context) ([]string, error)

	// Close releases connections held by the backend.
	Close() error
}

// NewRecordBackend builds the backend selected by cfg.Driver.
func NewRecordBackend(ctx context.Context, cfg ServiceConfig) (RecordBackend, error) {
	switch cfg.Driver {
	case DriverFile, "":
		return NewFileBackend(cfg.DataDir), nil
	case DriverMemory:
		return NewMemoryBackend(), nil
	case DriverS3:
		b, err := newS3Backend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return NewPostgresBackend(pool), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
