package handlers

import (
	"net/http"

	"drainwatch/internal/ingestion"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// StatsHandler exposes the processing counters
type StatsHandler struct {
	processor *ingestion.Processor
	logger    *pterm.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(processor *ingestion.Processor, logger *pterm.Logger) *StatsHandler {
	return &StatsHandler{
		processor: processor,
		logger:    logger,
	}
}

// GetStats handles GET /stats
func (h *StatsHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.Stats())
}
