package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/stats"
	"github.com/richharvestCC/ScoreBoard-sub001/pkg/response"
)

// HTTPHandler exposes the read-only stats projection.
type HTTPHandler struct {
	aggregator *stats.Aggregator
}

func NewHTTPHandler(agg *stats.Aggregator) *HTTPHandler {
	return &HTTPHandler{aggregator: agg}
}

// RegisterRoutes mounts the stats endpoints.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/live")
	{
		api.GET("/matches", h.listLiveMatches)
		api.GET("/matches/:id", h.matchStats)
		api.GET("/totals", h.globalTotals)
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})
}

func (h *HTTPHandler) listLiveMatches(c *gin.Context) {
	response.Success(c, h.aggregator.ListLiveMatches())
}

func (h *HTTPHandler) matchStats(c *gin.Context) {
	st, ok := h.aggregator.MatchStats(c.Param("id"))
	if !ok {
		response.NotFound(c, "match is not live")
		return
	}
	response.Success(c, st)
}

func (h *HTTPHandler) globalTotals(c *gin.Context) {
	response.Success(c, h.aggregator.Totals())
}
