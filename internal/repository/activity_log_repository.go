package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/store-incident-api/internal/models"
)

// ActivityLogRepository stores the activity and authentication trail.
type ActivityLogRepository struct {
	db *sqlx.DB
}

// NewActivityLogRepository creates a new instance of ActivityLogRepository.
func NewActivityLogRepository(db *sqlx.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create stores an activity log entry.
func (r *ActivityLogRepository) Create(ctx context.Context, log *models.ActivityLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (user_id, action, resource, resource_id, payload, ip_address, user_agent, created_at)
VALUES (:user_id, :action, :resource, :resource_id, :payload, :ip_address, :user_agent, :created_at)
RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, log)
	if err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&log.ID); err != nil {
			return fmt.Errorf("scan activity log id: %w", err)
		}
	}
	return rows.Err()
}

// ListByResource returns the trail of one resource, newest first.
func (r *ActivityLogRepository) ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, user_id, action, resource, resource_id, payload, ip_address, user_agent, created_at
FROM activity_logs WHERE resource = $1 AND resource_id = $2 ORDER BY created_at DESC, id DESC LIMIT $3`
	var logs []models.ActivityLog
	if err := r.db.SelectContext(ctx, &logs, query, resource, resourceID, limit); err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	return logs, nil
}
