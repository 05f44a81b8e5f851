package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/store-incident-api/internal/models"
	"github.com/noah-isme/store-incident-api/internal/validation"
	appErrors "github.com/noah-isme/store-incident-api/pkg/errors"
)

type referenceRepository interface {
	Load(ctx context.Context) (*models.ReferenceSets, error)
}

// ReferenceService owns the process-wide reference snapshot. Refresh builds a new snapshot and
// swaps the pointer; a published snapshot is never modified.
type ReferenceService struct {
	repo    referenceRepository
	metrics *MetricsService
	logger  *zap.Logger
	current atomic.Pointer[validation.Snapshot]
	now     func() time.Time
}

// NewReferenceService constructs a ReferenceService.
func NewReferenceService(repo referenceRepository, metrics *MetricsService, logger *zap.Logger) *ReferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceService{repo: repo, metrics: metrics, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Refresh reloads every reference set and publishes the result.
func (s *ReferenceService) Refresh(ctx context.Context) (*validation.Snapshot, error) {
	start := time.Now()
	sets, err := s.repo.Load(ctx)
	s.metrics.ObserveReferenceRefresh(time.Since(start))
	if err != nil {
		s.logger.Error("reference refresh failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reference data")
	}
	snap := validation.NewSnapshot(
		sets.StoreNumbers,
		sets.IncidentTypes,
		sets.IncidentTransactionTypes,
		sets.DistrictManagers,
		sets.ActiveUsernames,
		s.now(),
	)
	s.current.Store(snap)
	s.logger.Debug("reference snapshot refreshed",
		zap.Int("store_numbers", len(snap.StoreNumbers)),
		zap.Int("incident_types", len(snap.IncidentTypes)),
		zap.Int("transaction_types", len(snap.IncidentTransactionTypes)),
	)
	return snap, nil
}

// Current returns the last published snapshot, loading one if none exists yet.
func (s *ReferenceService) Current(ctx context.Context) (*validation.Snapshot, error) {
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	return s.Refresh(ctx)
}
