package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/store-incident-api/internal/validation"
	"github.com/noah-isme/store-incident-api/pkg/response"
)

type referenceService interface {
	Current(ctx context.Context) (*validation.Snapshot, error)
	Refresh(ctx context.Context) (*validation.Snapshot, error)
}

// ReferenceHandler exposes the reference sets reports are validated against.
type ReferenceHandler struct {
	service referenceService
}

// NewReferenceHandler constructs a reference handler.
func NewReferenceHandler(svc referenceService) *ReferenceHandler {
	return &ReferenceHandler{service: svc}
}

// Get godoc
// @Summary Reference data
// @Description Store numbers, incident types and transaction types accepted by report validation. Pass refresh=true to reload from the database first.
// @Tags Reference
// @Produce json
// @Security BearerAuth
// @Param refresh query bool false "Reload before returning"
// @Success 200 {object} response.Envelope
// @Router /reference [get]
func (h *ReferenceHandler) Get(c *gin.Context) {
	load := h.service.Current
	if c.Query("refresh") == "true" {
		load = h.service.Refresh
	}
	snap, err := load(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snap)
}
