package ingest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/overwatch/ingestion-gateway/internal/metrics"
)

// healthResponse is the wire shape for GET /health (§6).
type healthResponse struct {
	Status             string `json:"status"`
	RedpandaConnected  bool   `json:"redpanda_connected"`
	ClickhouseConnected bool  `json:"clickhouse_connected"`
	QueueDepth         int64  `json:"queue_depth"`
}

// RegisterHealth mounts the three health endpoints of §6.
func RegisterHealth(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		h := metrics.GlobalHealth()
		c.JSON(http.StatusOK, healthResponse{
			Status:              h.Status(),
			RedpandaConnected:   h.ProducerHealthy(),
			ClickhouseConnected: h.StoreHealthy(),
			QueueDepth:          h.QueueDepth(),
		})
	})

	r.GET("/health/ready", func(c *gin.Context) {
		if metrics.GlobalHealth().ProducerHealthy() {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusServiceUnavailable)
	})

	r.GET("/health/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
}
