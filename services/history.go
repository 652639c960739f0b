package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"docbridge/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// HistoryService records every finished conversion in Postgres for audit and
// capacity planning. The whole service is optional: a nil *HistoryService is
// valid and records nothing, and write errors are the caller's to soft-fail.
type HistoryService struct {
	db *sql.DB
}

const historySchema = `
CREATE TABLE IF NOT EXISTS conversions (
	id             UUID PRIMARY KEY,
	kind           TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	engine         TEXT NOT NULL DEFAULT '',
	original_size  INTEGER NOT NULL DEFAULT 0,
	converted_size INTEGER NOT NULL DEFAULT 0,
	duration_ms    BIGINT NOT NULL DEFAULT 0,
	cached         BOOLEAN NOT NULL DEFAULT FALSE,
	success        BOOLEAN NOT NULL,
	error_message  TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
)`

func NewHistoryService(databaseURL string) (*HistoryService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(historySchema); err != nil {
		return nil, fmt.Errorf("failed to ensure conversions table: %w", err)
	}

	return &HistoryService{db: db}, nil
}

// Record inserts one audit row. A cached result still counts the request but
// keeps the near-zero duration the hit actually cost.
func (h *HistoryService) Record(ctx context.Context, jobID uuid.UUID, kind models.JobKind, result *models.ConversionResult) error {
	if h == nil {
		return nil
	}

	query := `INSERT INTO conversions
		(id, kind, content_hash, engine, original_size, converted_size, duration_ms, cached, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := h.db.ExecContext(ctx, query,
		jobID,
		string(kind),
		result.ContentHash,
		result.Metadata.Engine,
		result.Metadata.OriginalSize,
		result.Metadata.ConvertedSize,
		result.Metadata.DurationMS,
		result.Cached,
		result.Success,
		result.Error,
		time.Now(),
	)
	return err
}

func (h *HistoryService) Close() error {
	if h == nil {
		return nil
	}
	return h.db.Close()
}
