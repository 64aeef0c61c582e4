package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/railwatch/gtfs-rt-pipeline/app/cfg"
	"github.com/railwatch/gtfs-rt-pipeline/app/database"
	"github.com/railwatch/gtfs-rt-pipeline/app/pipeline"
)

type Handler struct {
	db      *database.DB
	metrics *pipeline.Metrics
	started time.Time
}

func NewHandler(db *database.DB, metrics *pipeline.Metrics) *Handler {
	return &Handler{
		db:      db,
		metrics: metrics,
		started: time.Now(),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"version":   cfg.Get().Version,
	}

	status := http.StatusOK
	if err := h.db.Ping(); err != nil {
		health["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		health["database"] = "ok"
	}

	c.JSON(status, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
