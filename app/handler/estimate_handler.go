package handler

import (
	"math"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"exportestimator/internal/service"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/stats"
)

// EstimateRequest asks for the size or duration of exporting an area
type EstimateRequest struct {
	BBox     []float64 `json:"bbox" binding:"required,len=4"` // west, south, east, north
	Provider string    `json:"provider" binding:"required"`   // data provider slug
	Grouping string    `json:"grouping"`
	Type     string    `json:"type"` // size (default) or duration
	// Narrow a raster provider's levels
	MinZoom *int `json:"min_zoom" binding:"omitempty,min=0"`
	MaxZoom *int `json:"max_zoom" binding:"omitempty,min=0"`
}

// EstimateResponse is an estimate with a human readable rendition
type EstimateResponse struct {
	*service.EstimateResult
	Human string `json:"human"`
}

// EstimateHandler serves export estimates
type EstimateHandler struct {
	statsService *service.StatisticsService
}

// NewEstimateHandler creates a new estimate handler
func NewEstimateHandler(statsService *service.StatisticsService) *EstimateHandler {
	return &EstimateHandler{statsService: statsService}
}

// Estimate estimates one export
// @Summary Estimate an export
// @Description Estimate the result size in bytes or the duration in seconds of exporting a bbox from a provider
// @Tags estimates
// @Accept json
// @Produce json
// @Param request body EstimateRequest true "Estimate request"
// @Success 200 {object} EstimateResponse
// @Router /api/v1/estimates [post]
func (h *EstimateHandler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.statsService.EstimateForProvider(c.Request.Context(), service.EstimateRequest{
		BBox:     geo.NewBBox(req.BBox[0], req.BBox[1], req.BBox[2], req.BBox[3]),
		Provider: req.Provider,
		Grouping: req.Grouping,
		Type:     service.EstimateType(req.Type),
		MinZoom:  req.MinZoom,
		MaxZoom:  req.MaxZoom,
	})
	if err != nil {
		writeError(c, "estimate "+req.Provider, err)
		return
	}

	c.JSON(http.StatusOK, EstimateResponse{EstimateResult: res, Human: humanValue(res)})
}

func humanValue(res *service.EstimateResult) string {
	if res.Type == service.EstimateDuration {
		return stats.FormatHMS(res.Value)
	}
	if res.Value <= 0 || math.IsNaN(res.Value) {
		return humanize.IBytes(0)
	}
	return humanize.IBytes(uint64(math.Round(res.Value)))
}
