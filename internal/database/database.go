// Package database provides the data access layer with support for multiple backends.
package database

import (
	"context"
	"time"

	"github.com/factchecker/citecheck/internal/models"
)

// Store defines the interface for data persistence.
type Store interface {
	// Verification runs
	SaveRun(ctx context.Context, summary *models.RunSummary, results []models.VerificationResult) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*models.RunSummary, error)

	// Result cache tier
	GetCacheEntry(ctx context.Context, key string, now time.Time) ([]byte, error)
	PutCacheEntry(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	DeleteCacheEntries(ctx context.Context) (int64, error)
	CountCacheEntries(ctx context.Context, now time.Time) (int, error)
	PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error)

	// Audit logs
	LogRequest(ctx context.Context, log *models.AuditLog) error
	GetAuditLogs(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)

	// Lifecycle
	Close() error
	Migrate() error
}
