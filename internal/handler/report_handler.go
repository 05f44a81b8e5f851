package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/store-incident-api/internal/dto"
	"github.com/noah-isme/store-incident-api/internal/middleware"
	"github.com/noah-isme/store-incident-api/internal/models"
	appErrors "github.com/noah-isme/store-incident-api/pkg/errors"
	"github.com/noah-isme/store-incident-api/pkg/response"
)

const maxReportBody = 8 << 20

type reportService interface {
	Get(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context) (*models.ReportList, bool, error)
	Create(ctx context.Context, body interface{}, actor models.Actor) (*models.Report, error)
	Update(ctx context.Context, id string, body interface{}, actor models.Actor) (*models.Report, error)
	Import(ctx context.Context, body interface{}, actor models.Actor) ([]models.Report, error)
	SoftDelete(ctx context.Context, id string, actor models.Actor) (*models.Report, error)
	UndoSoftDelete(ctx context.Context, id string, actor models.Actor) (*models.Report, error)
	HardDelete(ctx context.Context, id string, req dto.HardDeleteRequest, actor models.Actor) error
	History(ctx context.Context, id string, limit int) ([]models.ActivityLog, error)
}

// ReportHandler exposes incident report endpoints.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs a report handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// List godoc
// @Summary List reports
// @Description Returns every report split into active and soft-deleted, newest first
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	list, cached, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, list, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get report
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report UUID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// History godoc
// @Summary Report activity trail
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report UUID"
// @Param limit query int false "Maximum entries (default 50, max 200)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id}/activity [get]
func (h *ReportHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, appErrors.Validation(map[string]string{"limit": "must be a positive integer"}))
			return
		}
		limit = n
	}
	logs, err := h.service.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs)
}

// Create godoc
// @Summary Create report
// @Description Validates, normalizes and stores a new incident report
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body object true "Report payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	body, ok := decodeJSONBody(c)
	if !ok {
		return
	}
	report, err := h.service.Create(c.Request.Context(), body, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetResourceID(c, report.UUID)
	response.Created(c, report)
}

// Update godoc
// @Summary Update report
// @Description Replaces every field and association of a report
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report UUID"
// @Param payload body object true "Report payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [put]
func (h *ReportHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	body, ok := decodeJSONBody(c)
	if !ok {
		return
	}
	report, err := h.service.Update(c.Request.Context(), c.Param("id"), body, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetResourceID(c, report.UUID)
	response.Created(c, report)
}

// Import godoc
// @Summary Import reports
// @Description Stores an array of reports in one transaction; either all are stored or none
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body []object true "Report documents"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports/import [post]
func (h *ReportHandler) Import(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	body, ok := decodeJSONBody(c)
	if !ok {
		return
	}
	reports, err := h.service.Import(c.Request.Context(), body, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, reports, map[string]interface{}{"count": len(reports)})
}

// SoftDelete godoc
// @Summary Soft delete report
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report UUID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id}/softDelete [put]
func (h *ReportHandler) SoftDelete(c *gin.Context) {
	h.toggleDeleted(c, h.service.SoftDelete)
}

// UndoSoftDelete godoc
// @Summary Restore soft deleted report
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report UUID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id}/softDeleteUndo [put]
func (h *ReportHandler) UndoSoftDelete(c *gin.Context) {
	h.toggleDeleted(c, h.service.UndoSoftDelete)
}

func (h *ReportHandler) toggleDeleted(c *gin.Context, op func(context.Context, string, models.Actor) (*models.Report, error)) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	report, err := op(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetResourceID(c, report.UUID)
	response.JSON(c, http.StatusOK, report)
}

// HardDelete godoc
// @Summary Permanently delete report
// @Description Requires an elevated role and the caller's password
// @Tags Reports
// @Accept json
// @Security BearerAuth
// @Param id path string true "Report UUID"
// @Param payload body dto.HardDeleteRequest true "Password confirmation"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [delete]
func (h *ReportHandler) HardDelete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.HardDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(map[string]string{"password": "is required"}))
		return
	}
	id := c.Param("id")
	if err := h.service.HardDelete(c.Request.Context(), id, req, actor); err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetResourceID(c, id)
	response.NoContent(c)
}

// decodeJSONBody reads the request body as a generic JSON document, keeping numbers exact.
func decodeJSONBody(c *gin.Context) (interface{}, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxReportBody))
	dec.UseNumber()

	var body interface{}
	err := dec.Decode(&body)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON document")
	}
	if err != nil {
		msg := "must be valid JSON"
		if errors.Is(err, io.EOF) {
			msg = "is required"
		}
		response.Error(c, appErrors.Validation(map[string]string{"body": msg}))
		return nil, false
	}
	return body, true
}
