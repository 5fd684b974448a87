package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	"exportestimator/internal/service"
	"exportestimator/pkg/stats"
)

// RefreshQueue hands refresh requests to the background workers
type RefreshQueue interface {
	EnqueueRefresh(ctx context.Context, grouping string) (taskID string, enqueued bool, err error)
}

// StatisticsHandler serves the aggregated export statistics
type StatisticsHandler struct {
	statsService *service.StatisticsService
	queue        RefreshQueue
}

// NewStatisticsHandler creates a new statistics handler. Without a queue,
// refresh requests are served synchronously.
func NewStatisticsHandler(statsService *service.StatisticsService, queue RefreshQueue) *StatisticsHandler {
	return &StatisticsHandler{
		statsService: statsService,
		queue:        queue,
	}
}

// GetStatistics returns the statistics tree of a grouping
// @Summary Get export statistics
// @Description Get the aggregated statistics tree, recomputed when stale or forced
// @Tags statistics
// @Produce json
// @Param grouping path string true "provider_name or provider_type"
// @Param force query bool false "Recompute before answering"
// @Param format query string false "human renders durations as H:MM:SS"
// @Success 200 {object} aggregate.Tree
// @Router /api/v1/statistics/{grouping} [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	grouping := c.Param("grouping")

	force := false
	if v := c.Query("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid force value %q", v)})
			return
		}
		force = parsed
	}

	tree, err := h.statsService.GetStatistics(c.Request.Context(), grouping, force)
	if err != nil {
		writeError(c, "get statistics by "+grouping, err)
		return
	}

	var payload any = tree
	if c.Query("format") == "human" {
		payload = tree.Render(stats.DefaultFormatters())
	}
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(c, "encode statistics", err)
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	if !force && c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// Refresh queues a recomputation of a grouping
// @Summary Refresh export statistics
// @Tags statistics
// @Produce json
// @Param grouping path string true "provider_name or provider_type"
// @Success 202 {object} map[string]interface{}
// @Router /api/v1/statistics/{grouping}/refresh [post]
func (h *StatisticsHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	strategy, err := h.statsService.Grouping(ctx, c.Param("grouping"))
	if err != nil {
		writeError(c, "resolve grouping", err)
		return
	}
	grouping := strategy.Name()

	if h.queue == nil {
		if err := h.statsService.Refresh(ctx, grouping); err != nil {
			writeError(c, "refresh statistics by "+grouping, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"grouping": grouping, "state": "SUCCEEDED"})
		return
	}

	taskID, enqueued, err := h.queue.EnqueueRefresh(ctx, grouping)
	if err != nil {
		writeError(c, "enqueue refresh of "+grouping, err)
		return
	}
	if enqueued {
		h.statsService.MarkQueued(ctx, grouping, taskID)
	}
	c.JSON(http.StatusAccepted, gin.H{
		"grouping": grouping,
		"task_id":  taskID,
		"enqueued": enqueued,
	})
}

// RefreshStatus returns the latest refresh status of a grouping
// @Summary Get refresh status
// @Tags statistics
// @Produce json
// @Param grouping path string true "provider_name or provider_type"
// @Success 200 {object} model.RefreshStatus
// @Router /api/v1/statistics/{grouping}/refresh [get]
func (h *StatisticsHandler) RefreshStatus(c *gin.Context) {
	status, err := h.statsService.RefreshStatus(c.Request.Context(), c.Param("grouping"))
	if err != nil {
		writeError(c, "get refresh status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListRefreshStatuses returns the latest refresh status of every grouping
// @Summary List refresh statuses
// @Tags statistics
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/statistics [get]
func (h *StatisticsHandler) ListRefreshStatuses(c *gin.Context) {
	statuses, err := h.statsService.RefreshStatuses(c.Request.Context())
	if err != nil {
		writeError(c, "list refresh statuses", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshes": statuses})
}
