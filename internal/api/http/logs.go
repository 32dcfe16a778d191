package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RendererLogEntry is one log record forwarded by the renderer
type RendererLogEntry struct {
	ID        string                 `json:"id"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context"`
	Timestamp string                 `json:"timestamp"`
}

// RendererLogBatch is a batch of renderer-side logs
type RendererLogBatch struct {
	Source    string             `json:"source"`
	Entries   []RendererLogEntry `json:"entries"`
	Timestamp int64              `json:"timestamp"`
}

// IngestLogs folds renderer-side logs into the server log stream so
// fragment issues can be debugged from one place
func (h *Handlers) IngestLogs(c *gin.Context) {
	var req RendererLogBatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log batch"})
		return
	}

	if req.Source != "renderer" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown log source"})
		return
	}
	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no log entries provided"})
		return
	}

	processed := 0
	for _, entry := range req.Entries {
		if err := h.ingestEntry(entry); err != nil {
			h.logger.Error("Failed to ingest renderer log entry",
				zap.Error(err),
				zap.String("renderer_log_id", entry.ID),
				zap.String("renderer_level", entry.Level),
			)
			continue
		}
		processed++
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"entries_received":  len(req.Entries),
		"entries_processed": processed,
		"timestamp":         time.Now().Unix(),
	})
}

// ingestEntry relogs a single renderer entry with structured fields
func (h *Handlers) ingestEntry(entry RendererLogEntry) error {
	if entry.Message == "" {
		return fmt.Errorf("empty message")
	}

	fields := make([]zap.Field, 0, len(entry.Context)+3)
	fields = append(fields,
		zap.String("renderer_log_id", entry.ID),
		zap.String("source", "renderer"),
		zap.String("renderer_timestamp", entry.Timestamp),
	)

	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case int:
			fields = append(fields, zap.Int(key, v))
		case int64:
			fields = append(fields, zap.Int64(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		h.logger.Error(entry.Message, fields...)
	case "warn":
		h.logger.Warn(entry.Message, fields...)
	case "debug", "verbose":
		h.logger.Debug(entry.Message, fields...)
	default:
		h.logger.Info(entry.Message, fields...)
	}

	return nil
}
