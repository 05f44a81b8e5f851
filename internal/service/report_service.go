package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/store-incident-api/internal/dto"
	"github.com/noah-isme/store-incident-api/internal/models"
	"github.com/noah-isme/store-incident-api/internal/repository"
	"github.com/noah-isme/store-incident-api/internal/validation"
	appErrors "github.com/noah-isme/store-incident-api/pkg/errors"
)

// Report write operations, used as metric labels.
const (
	opCreate     = "create"
	opUpdate     = "update"
	opImport     = "import"
	opSoftDelete = "soft_delete"
	opUndoDelete = "soft_delete_undo"
	opHardDelete = "hard_delete"
)

// reportResource names reports in the activity trail.
const reportResource = "reports"

type reportStore interface {
	FindByUUID(ctx context.Context, uuid string) (*models.Report, error)
	List(ctx context.Context) ([]models.Report, error)
	Create(ctx context.Context, w dto.ReportWrite) (*models.Report, error)
	Import(ctx context.Context, writes []dto.ReportWrite) ([]models.Report, error)
	Update(ctx context.Context, id int64, w dto.ReportWrite) (*models.Report, error)
	SetDeleted(ctx context.Context, uuid string, deleted bool, updatedBy int64, at time.Time) (*models.Report, error)
	HardDelete(ctx context.Context, uuid string) error
}

type reportUserStore interface {
	FindActiveByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type snapshotRefresher interface {
	Refresh(ctx context.Context) (*validation.Snapshot, error)
}

type reportActivity interface {
	activityRecorder
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.ActivityLog, error)
}

type reportNotifier interface {
	Notify(report *models.Report)
}

// ReportServiceConfig carries report write settings.
type ReportServiceConfig struct {
	SchemaVersion string
	Location      *time.Location
	CacheTTL      time.Duration
}

// ReportService validates, normalizes and persists incident reports.
type ReportService struct {
	repo       reportStore
	users      reportUserStore
	references snapshotRefresher
	validator  *validation.Validator
	cache      *CacheService
	notifier   reportNotifier
	activity   reportActivity
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        ReportServiceConfig
	now        func() time.Time
	newUUID    func() string
}

// NewReportService constructs a ReportService.
func NewReportService(
	repo reportStore,
	users reportUserStore,
	references snapshotRefresher,
	validator *validation.Validator,
	cache *CacheService,
	notifier reportNotifier,
	activity reportActivity,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg ReportServiceConfig,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = validation.New(nil, users)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = "1.0.0"
	}
	return &ReportService{
		repo:       repo,
		users:      users,
		references: references,
		validator:  validator,
		cache:      cache,
		notifier:   notifier,
		activity:   activity,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		newUUID:    uuid.NewString,
	}
}

// Get returns a report by uuid.
func (s *ReportService) Get(ctx context.Context, id string) (*models.Report, error) {
	report, err := s.repo.FindByUUID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, "failed to load report")
	}
	return report, nil
}

// History returns the activity trail of one report, newest first.
func (s *ReportService) History(ctx context.Context, id string, limit int) ([]models.ActivityLog, error) {
	if _, err := s.repo.FindByUUID(ctx, id); err != nil {
		return nil, s.lookupError(err, "failed to load report")
	}
	if s.activity == nil {
		return []models.ActivityLog{}, nil
	}
	logs, err := s.activity.ListByResource(ctx, reportResource, id, limit)
	if err != nil {
		return nil, s.internal(err, "failed to load report history")
	}
	if logs == nil {
		logs = []models.ActivityLog{}
	}
	return logs, nil
}

// List returns every report partitioned by soft-delete state and whether it came from cache.
func (s *ReportService) List(ctx context.Context) (*models.ReportList, bool, error) {
	var cached models.ReportList
	if s.cache.Get(ctx, ReportListCacheKey, &cached) {
		return &cached, true, nil
	}

	reports, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list reports", zap.Error(err))
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	list := &models.ReportList{Active: []models.Report{}, Deleted: []models.Report{}}
	for _, report := range reports {
		if report.IsDeleted {
			list.Deleted = append(list.Deleted, report)
		} else {
			list.Active = append(list.Active, report)
		}
	}
	s.cache.Set(ctx, ReportListCacheKey, list, s.cfg.CacheTTL)
	return list, false, nil
}

// Create validates body and stores it as a new report.
func (s *ReportService) Create(ctx context.Context, body interface{}, actor models.Actor) (*models.Report, error) {
	res, err := s.validate(ctx, validation.CreateReportSchema, body)
	if err != nil {
		return nil, err
	}
	in, err := validation.DecodeReport(res)
	if err != nil {
		return nil, s.internal(err, "failed to decode report")
	}

	now := s.now()
	w, err := s.write(in)
	if err != nil {
		return nil, err
	}
	w.UUID = s.newUUID()
	w.CreatedAt, w.UpdatedAt = now, now
	w.CreatedBy, w.UpdatedBy = actor.UserID, actor.UserID
	w.IsDeleted, w.IsWebhookSent, w.HasTriggeredWebhook = false, false, false

	start := time.Now()
	report, err := s.repo.Create(ctx, w)
	s.metrics.ObserveReportWrite(opCreate, err, time.Since(start))
	if err != nil {
		return nil, s.persistenceError(opCreate, err)
	}

	s.afterWrite(ctx, report)
	s.logger.Info("report created", zap.String("uuid", report.UUID), zap.Int64("user_id", actor.UserID))
	return report, nil
}

// Update validates body and fully replaces the report identified by id.
func (s *ReportService) Update(ctx context.Context, id string, body interface{}, actor models.Actor) (*models.Report, error) {
	existing, err := s.repo.FindByUUID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, "failed to load report")
	}

	if doc, ok := body.(map[string]interface{}); ok {
		withID := make(map[string]interface{}, len(doc)+1)
		for k, v := range doc {
			withID[k] = v
		}
		withID["id"] = existing.ID
		body = withID
	}

	res, err := s.validate(ctx, validation.UpdateReportSchema, body)
	if err != nil {
		return nil, err
	}
	in, err := validation.DecodeReport(res)
	if err != nil {
		return nil, s.internal(err, "failed to decode report")
	}

	now := s.now()
	var w dto.ReportWrite
	if strings.TrimSpace(in.Call.Date) == existing.Call.Date && strings.TrimSpace(in.Call.Time) == existing.Call.Time {
		w = s.assemble(in, existing.Call.DateTime)
	} else if w, err = s.write(in); err != nil {
		return nil, err
	}
	w.UUID = existing.UUID
	w.Version = existing.Version
	w.CreatedAt, w.UpdatedAt = existing.CreatedAt, now
	w.CreatedBy, w.UpdatedBy = actor.UserID, actor.UserID
	if existing.CreatedBy != nil {
		w.CreatedBy = *existing.CreatedBy
	}

	start := time.Now()
	report, err := s.repo.Update(ctx, existing.ID, w)
	s.metrics.ObserveReportWrite(opUpdate, err, time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, s.persistenceError(opUpdate, err)
	}

	s.cache.Invalidate(ctx, ReportCachePattern)
	s.logger.Info("report updated", zap.String("uuid", report.UUID), zap.Int64("user_id", actor.UserID))
	return report, nil
}

// Import validates an array of reports and stores them all in one transaction.
func (s *ReportService) Import(ctx context.Context, body interface{}, actor models.Actor) ([]models.Report, error) {
	res, err := s.validate(ctx, validation.ImportReportSchema, body)
	if err != nil {
		return nil, err
	}
	inputs, err := validation.DecodeImport(res)
	if err != nil {
		return nil, s.internal(err, "failed to decode import")
	}

	resolved := map[string]int64{}
	identity := func(username *string) (int64, error) {
		if username == nil || *username == "" {
			return actor.UserID, nil
		}
		if id, ok := resolved[*username]; ok {
			return id, nil
		}
		id := actor.UserID
		user, err := s.users.FindActiveByUsername(ctx, *username)
		switch {
		case err == nil && user != nil:
			id = user.ID
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return 0, s.internal(err, "failed to resolve import user")
		}
		resolved[*username] = id
		return id, nil
	}

	now := s.now()
	writes := make([]dto.ReportWrite, 0, len(inputs))
	for _, in := range inputs {
		w, err := s.write(in)
		if err != nil {
			return nil, err
		}
		w.UUID = s.newUUID()
		w.CreatedAt, w.UpdatedAt = now, now
		if in.CreatedAt != nil {
			w.CreatedAt = in.CreatedAt.UTC()
		}
		if in.UpdatedAt != nil {
			w.UpdatedAt = in.UpdatedAt.UTC()
		}
		if w.CreatedBy, err = identity(in.CreatedBy); err != nil {
			return nil, err
		}
		if w.UpdatedBy, err = identity(in.UpdatedBy); err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}

	start := time.Now()
	reports, err := s.repo.Import(ctx, writes)
	s.metrics.ObserveReportWrite(opImport, err, time.Since(start))
	if err != nil {
		return nil, s.persistenceError(opImport, err)
	}

	s.cache.Invalidate(ctx, ReportCachePattern)
	for i := range reports {
		s.notify(&reports[i])
	}
	s.logger.Info("reports imported", zap.Int("count", len(reports)), zap.Int64("user_id", actor.UserID))
	return reports, nil
}

// SoftDelete marks a report as deleted.
func (s *ReportService) SoftDelete(ctx context.Context, id string, actor models.Actor) (*models.Report, error) {
	return s.setDeleted(ctx, id, true, actor)
}

// UndoSoftDelete restores a soft-deleted report.
func (s *ReportService) UndoSoftDelete(ctx context.Context, id string, actor models.Actor) (*models.Report, error) {
	return s.setDeleted(ctx, id, false, actor)
}

func (s *ReportService) setDeleted(ctx context.Context, id string, deleted bool, actor models.Actor) (*models.Report, error) {
	op, stateMsg := opSoftDelete, "report is already deleted"
	if !deleted {
		op, stateMsg = opUndoDelete, "report is not deleted"
	}

	start := time.Now()
	report, err := s.repo.SetDeleted(ctx, id, deleted, actor.UserID, s.now())
	s.metrics.ObserveReportWrite(op, err, time.Since(start))
	switch {
	case errors.Is(err, repository.ErrReportStateUnchanged):
		return nil, appErrors.Clone(appErrors.ErrInvalidState, stateMsg)
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	if err != nil {
		return nil, s.persistenceError(op, err)
	}

	s.cache.Invalidate(ctx, ReportCachePattern)
	return report, nil
}

// HardDelete permanently removes a report. The caller needs an elevated role and must confirm
// with their own password; both failures return the same error.
func (s *ReportService) HardDelete(ctx context.Context, id string, req dto.HardDeleteRequest, actor models.Actor) error {
	if req.Password == "" {
		return appErrors.Validation(map[string]string{"password": "is required"})
	}
	if err := s.authorizeHardDelete(ctx, req.Password, actor); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNoPermission.Code {
			s.recordDenied(ctx, id, actor)
		}
		return err
	}

	start := time.Now()
	err := s.repo.HardDelete(ctx, id)
	s.metrics.ObserveReportWrite(opHardDelete, err, time.Since(start))
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	if err != nil {
		return s.persistenceError(opHardDelete, err)
	}

	s.cache.Invalidate(ctx, ReportCachePattern)
	s.logger.Info("report hard deleted", zap.String("uuid", id), zap.Int64("user_id", actor.UserID))
	return nil
}

func (s *ReportService) authorizeHardDelete(ctx context.Context, password string, actor models.Actor) error {
	denied := appErrors.Clone(appErrors.ErrNoPermission, "")
	if !actor.Role.IsElevated() {
		return denied
	}
	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return denied
		}
		return s.internal(err, "failed to load user")
	}
	if !user.IsActive || !user.Role.IsElevated() {
		return denied
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return denied
	}
	return nil
}

func (s *ReportService) recordDenied(ctx context.Context, id string, actor models.Actor) {
	s.logger.Warn("hard delete denied", zap.String("uuid", id), zap.Int64("user_id", actor.UserID))
	if s.activity == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"uuid": id})
	userID := actor.UserID
	if err := s.activity.Create(ctx, &models.ActivityLog{
		UserID:     &userID,
		Action:     models.ActivityReportHardDeleteNo,
		Resource:   reportResource,
		ResourceID: &id,
		Payload:    payload,
		IPAddress:  actor.Meta.IP,
		UserAgent:  actor.Meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record activity", zap.Error(err))
	}
}

// validate refreshes the reference snapshot and runs schema against body.
func (s *ReportService) validate(ctx context.Context, schema *validation.Schema, body interface{}) (*validation.Result, error) {
	snap, err := s.references.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.validator.Validate(ctx, schema, body, snap)
	if err != nil {
		var fieldErrs validation.FieldErrors
		if errors.As(err, &fieldErrs) {
			return nil, appErrors.Validation(map[string]string(fieldErrs))
		}
		return nil, s.internal(err, "failed to validate report")
	}
	return res, nil
}

// write builds the persisted shape of in, computing call.dateTime in the configured zone.
func (s *ReportService) write(in dto.ReportInput) (dto.ReportWrite, error) {
	dateTime, err := validation.CombineDateTime(in.Call.Date, in.Call.Time, s.cfg.Location)
	if err != nil {
		return dto.ReportWrite{}, appErrors.Validation(map[string]string{"call.date": err.Error()})
	}
	w := s.assemble(in, dateTime)
	w.Version = s.cfg.SchemaVersion
	return w, nil
}

func (s *ReportService) assemble(in dto.ReportInput, dateTime time.Time) dto.ReportWrite {
	incident := in.Incident
	if len(incident.Transaction.Types) == 0 {
		incident.Transaction = models.EmptyTransaction()
	}
	return dto.ReportWrite{
		AssignedTo:          in.AssignedToID,
		IsOnCall:            in.IsOnCall,
		IsDeleted:           in.IsDeleted,
		IsWebhookSent:       in.IsWebhookSent,
		HasTriggeredWebhook: in.HasTriggeredWebhook,
		Call: models.ReportCall{
			Date:     strings.TrimSpace(in.Call.Date),
			Time:     strings.TrimSpace(in.Call.Time),
			DateTime: dateTime.UTC(),
			Phone:    in.Call.Phone,
			Status:   in.Call.Status,
		},
		Store:    in.Store,
		Incident: incident,
	}
}

func (s *ReportService) afterWrite(ctx context.Context, report *models.Report) {
	s.cache.Invalidate(ctx, ReportCachePattern)
	s.notify(report)
}

func (s *ReportService) notify(report *models.Report) {
	if s.notifier != nil {
		s.notifier.Notify(report)
	}
}

func (s *ReportService) lookupError(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	return s.internal(err, msg)
}

func (s *ReportService) persistenceError(op string, err error) error {
	s.logger.Error("report write rolled back", zap.String("operation", op), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save report")
}

func (s *ReportService) internal(err error, msg string) error {
	s.logger.Error(msg, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}
