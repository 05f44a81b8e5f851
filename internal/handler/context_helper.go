package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/store-incident-api/internal/middleware"
	"github.com/noah-isme/store-incident-api/internal/models"
	appErrors "github.com/noah-isme/store-incident-api/pkg/errors"
	"github.com/noah-isme/store-incident-api/pkg/response"
)

// requireActor builds the caller identity from the JWT claims, writing 401 when absent.
func requireActor(c *gin.Context) (models.Actor, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return models.Actor{
		UserID: claims.UserID,
		Role:   claims.Role,
		Meta: models.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		},
	}, true
}
