package models

import (
	"encoding/json"
	"time"
)

// Activity actions recorded in activity_logs.
const (
	ActivityLogin              = "LOGIN"
	ActivityReportCreate       = "REPORT_CREATE"
	ActivityReportUpdate       = "REPORT_UPDATE"
	ActivityReportImport       = "REPORT_IMPORT"
	ActivityReportSoftDelete   = "REPORT_SOFT_DELETE"
	ActivityReportUndoDelete   = "REPORT_SOFT_DELETE_UNDO"
	ActivityReportHardDelete   = "REPORT_HARD_DELETE"
	ActivityReportHardDeleteNo = "REPORT_HARD_DELETE_DENIED"
)

// ActivityLog represents an activity/authentication trail record.
type ActivityLog struct {
	ID         int64           `db:"id" json:"id"`
	UserID     *int64          `db:"user_id" json:"userId,omitempty"`
	Action     string          `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resourceId,omitempty"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ipAddress"`
	UserAgent  string          `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}
