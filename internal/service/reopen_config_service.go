package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/clock"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/repository"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

// ReopenConfigService reads and updates the versioned reopen policy.
type ReopenConfigService struct {
	configs repository.ReopenConfigRepository
	seed    domain.ReopenConfig
	clock   clock.Clock
	logger  *zap.Logger
}

// NewReopenConfigService builds the service. seed is returned as version 0
// until the first update is stored.
func NewReopenConfigService(configs repository.ReopenConfigRepository, seed domain.ReopenConfig, clk clock.Clock, logger *zap.Logger) *ReopenConfigService {
	seed.Version = 0
	seed.UpdatedBy = nil
	return &ReopenConfigService{configs: configs, seed: seed, clock: clk, logger: logger}
}

// Get returns the current policy.
func (s *ReopenConfigService) Get(ctx context.Context) (domain.ReopenConfig, error) {
	cfg, err := s.configs.Latest(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return s.seed, nil
	}
	if err != nil {
		return domain.ReopenConfig{}, apperrors.MapError(err)
	}
	return *cfg, nil
}

// Update validates the merged policy and stores it as the next version.
// When expectedVersion is set it must match the current version.
func (s *ReopenConfigService) Update(ctx context.Context, actorID string, patch domain.ReopenConfigPatch, expectedVersion *int) (domain.ReopenConfig, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return domain.ReopenConfig{}, err
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return domain.ReopenConfig{}, apperrors.NewConflict("reopen config version mismatch", map[string]any{
			"expected_version": *expectedVersion,
			"current_version":  current.Version,
		})
	}

	next := patch.Merge(current)
	if problems := next.Validate(); problems != nil {
		return domain.ReopenConfig{}, apperrors.NewValidationError("invalid reopen config", problems)
	}
	next.Version = current.Version + 1
	next.UpdatedBy = &actorID
	next.UpdatedAt = s.clock.Now()

	if err := s.configs.Insert(ctx, &next); err != nil {
		return domain.ReopenConfig{}, mapStoreError(err, "reopen config", map[string]any{"version": next.Version})
	}
	s.logger.Info("reopen config updated",
		zap.Int("version", next.Version),
		zap.String("updated_by", actorID),
		zap.Int("reopen_window_days", next.ReopenWindowDays),
		zap.Int("max_reopen_count", next.MaxReopenCount),
		zap.String("sla_reset_mode", string(next.SLAResetMode)))
	return next, nil
}
