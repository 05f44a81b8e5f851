package dto

import (
	"time"

	"github.com/noah-isme/store-incident-api/internal/models"
)

// ReportInput is a validated and normalized report payload ready for persistence.
// Sets are already wildcard-expanded and deduplicated.
type ReportInput struct {
	AssignedTo   string
	AssignedToID int64
	IsOnCall     bool

	Call     CallInput
	Store    models.ReportStore
	Incident models.ReportIncident

	// Update and import only.
	IsDeleted           bool
	IsWebhookSent       bool
	HasTriggeredWebhook bool

	// Import only.
	CreatedAt *time.Time
	UpdatedAt *time.Time
	CreatedBy *string
	UpdatedBy *string
}

// CallInput carries the call fields as submitted.
type CallInput struct {
	Date   string
	Time   string
	Phone  string
	Status string
}

// ReportWrite is what the persistence engine writes for one report.
type ReportWrite struct {
	UUID                string
	Version             string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CreatedBy           int64
	UpdatedBy           int64
	AssignedTo          int64
	IsOnCall            bool
	IsDeleted           bool
	IsWebhookSent       bool
	HasTriggeredWebhook bool
	Call                models.ReportCall
	Store               models.ReportStore
	Incident            models.ReportIncident
}

// HardDeleteRequest is the DELETE /reports/:id payload.
type HardDeleteRequest struct {
	Password string `json:"password" validate:"required"`
}
