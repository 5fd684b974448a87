package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"exportestimator/internal/service"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/logger"
	redisstore "exportestimator/pkg/store/redis"
)

// statusOf maps service errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, geo.ErrInvalidBBox),
		errors.Is(err, service.ErrInvalidEstimateType),
		errors.Is(err, service.ErrInvalidZoomRange):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnknownProvider),
		errors.Is(err, service.ErrUnknownGrouping),
		errors.Is(err, redisstore.ErrRefreshStatusNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRefreshNotTracked):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, action string, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), "failed to %s: %v", action, err)
	} else {
		logger.DebugCtx(c.Request.Context(), "rejected %s: %v", action, err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
