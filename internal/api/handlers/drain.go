package handlers

import (
	"io"
	"net/http"

	"drainwatch/internal/drain"
	"drainwatch/internal/ingestion"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// DrainHandler receives logplex batches from the Heroku log drain
type DrainHandler struct {
	processor *ingestion.Processor
	logger    *pterm.Logger
}

// NewDrainHandler creates a new drain handler
func NewDrainHandler(processor *ingestion.Processor, logger *pterm.Logger) *DrainHandler {
	return &DrainHandler{
		processor: processor,
		logger:    logger,
	}
}

// ReceiveBatch handles POST /logs. The batch is acknowledged as soon as its
// frames are decoded and handed to the processor; per-frame outcomes never
// influence the response. Heroku retries the whole batch on anything but a
// 2xx, so a malformed frame must not fail its siblings.
func (h *DrainHandler) ReceiveBatch(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("Failed to read drain request body", h.logger.Args("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	token := c.GetHeader(drain.TokenHeader)
	framing := drain.DetectFraming(c.ContentType())

	frames, err := drain.Decode(body, framing)
	if err != nil {
		if len(frames) == 0 {
			h.logger.Warn("Rejected undecodable batch", h.logger.Args("error", err))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// Partial decode: keep what we got, ack the batch. A retry would
		// only duplicate the frames that did decode.
		h.logger.Warn("Partially decoded batch",
			h.logger.Args("frames", len(frames), "error", err))
	}

	h.processor.Enqueue(token, frames)
	c.JSON(http.StatusOK, gin.H{"frames": len(frames)})
}
