package repository

import (
	"context"

	"github.com/itasset/ticket-workflow/internal/domain"
)

// ReopenConfigRepository stores the versioned reopen policy. Rows are never
// updated; every change inserts the next version.
type ReopenConfigRepository interface {
	Latest(ctx context.Context) (*domain.ReopenConfig, error)
	// Insert writes cfg as a new version. Returns ErrVersionConflict if
	// cfg.Version is already taken.
	Insert(ctx context.Context, cfg *domain.ReopenConfig) error
}

type reopenConfigRepository struct {
	db DBTX
}

// NewReopenConfigRepository builds repository.
func NewReopenConfigRepository(db DBTX) ReopenConfigRepository {
	return &reopenConfigRepository{db: db}
}

func (r *reopenConfigRepository) Latest(ctx context.Context) (*domain.ReopenConfig, error) {
	const query = `
        SELECT version, reopen_window_days, max_reopen_count, sla_reset_mode, require_reopen_reason,
               notify_assignee, notify_manager, updated_by, updated_at
        FROM reopen_configs ORDER BY version DESC LIMIT 1`
	var cfg domain.ReopenConfig
	if err := r.db.QueryRow(ctx, query).Scan(
		&cfg.Version,
		&cfg.ReopenWindowDays,
		&cfg.MaxReopenCount,
		&cfg.SLAResetMode,
		&cfg.RequireReopenReason,
		&cfg.NotifyAssignee,
		&cfg.NotifyManager,
		&cfg.UpdatedBy,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &cfg, nil
}

func (r *reopenConfigRepository) Insert(ctx context.Context, cfg *domain.ReopenConfig) error {
	const query = `
        INSERT INTO reopen_configs (version, reopen_window_days, max_reopen_count, sla_reset_mode,
            require_reopen_reason, notify_assignee, notify_manager, updated_by, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		cfg.Version,
		cfg.ReopenWindowDays,
		cfg.MaxReopenCount,
		cfg.SLAResetMode,
		cfg.RequireReopenReason,
		cfg.NotifyAssignee,
		cfg.NotifyManager,
		cfg.UpdatedBy,
		cfg.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrVersionConflict
	}
	return err
}
