// Package store persists run records so identical uploads reuse earlier reports.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/earningscallsummarizer/internal/models"
)

var ErrNotFound = errors.New("run not found")

// Store is the run-record backend.
type Store interface {
	Create(ctx context.Context, run *models.Run) (string, error)
	Get(ctx context.Context, id string) (*models.Run, error)
	// FindByHash returns the newest run for the upload and preset, or nil.
	FindByHash(ctx context.Context, fileHash, preset string) (*models.Run, error)
	// FindCompleted returns the newest completed run for the upload and preset, or nil.
	FindCompleted(ctx context.Context, fileHash, preset string) (*models.Run, error)
	MarkStatus(ctx context.Context, id, status string) error
	MarkFailed(ctx context.Context, id, details string) error
	SetPageCount(ctx context.Context, id string, pageCount int) error
	Complete(ctx context.Context, id string, report models.Report) error
	Recent(ctx context.Context, limit int) ([]models.Run, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
	BackendNone      = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend        string
	ProjectID      string
	CollectionName string
	SQLitePath     string
}

// Open returns the configured backend. BackendNone returns a nil Store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFirestore, "":
		fs, err := OpenFirestore(ctx, cfg.ProjectID, cfg.CollectionName)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case BackendSQLite:
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
