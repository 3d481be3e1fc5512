package ingest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/overwatch/ingestion-gateway/internal/apperr"
	"github.com/overwatch/ingestion-gateway/internal/auth"
	"github.com/overwatch/ingestion-gateway/internal/event"
	"github.com/overwatch/ingestion-gateway/internal/logger"
	"github.com/overwatch/ingestion-gateway/internal/metrics"
	"github.com/overwatch/ingestion-gateway/internal/ratelimit"
)

// Publisher is the capability the handler needs from the log producer:
// accept a list of storage records for one request (§9: "the producer
// is abstracted behind a single capability 'accept a list of storage
// records'").
type Publisher interface {
	Publish(ctx context.Context, records []event.StorageRecord) error
}

// IngestResponse is the synchronous response shape (§6).
type IngestResponse struct {
	Success   bool     `json:"success"`
	Received  int      `json:"received"`
	Timestamp int64    `json:"timestamp"`
	Errors    []string `json:"errors,omitempty"`
}

// Handler orchestrates the ingest contract of §4.5.
type Handler struct {
	gateway   *auth.Gateway
	limiter   *ratelimit.Limiter
	publisher Publisher
	now       func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(gateway *auth.Gateway, limiter *ratelimit.Limiter, publisher Publisher) *Handler {
	return &Handler{gateway: gateway, limiter: limiter, publisher: publisher, now: time.Now}
}

// Register mounts the ingest endpoint at both the canonical path and
// its legacy alias (OQ2: "mount both, they share the handler").
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/overwatch-ingest", h.Handle)
	r.POST("/ingest", h.Handle)
}

// Handle implements the seven-step contract of §4.5.
func (h *Handler) Handle(c *gin.Context) {
	log := logger.Ingest().With().Str("client_ip", ClientIP(c)).Logger()

	// 1. Size guard.
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, event.MaxBatchBodyBytes+1))
	if err != nil {
		apperr.Abort(c, apperr.InvalidPayload("failed to read request body"))
		return
	}
	if len(body) > event.MaxBatchBodyBytes {
		metrics.Global().RejectedValid.Add(1)
		apperr.Abort(c, apperr.InvalidPayload("request body exceeds 1 MiB"))
		return
	}

	// 2. Auth.
	credHeader := c.GetHeader("Authorization")
	apiKeyHeader := c.GetHeader("X-API-Key")
	key, authErr := auth.ExtractCredential(credHeader, apiKeyHeader)
	if authErr != nil {
		metrics.Global().RejectedAuth.Add(1)
		apperr.Abort(c, authErr)
		return
	}

	resp, authErr := h.gateway.Validate(c.Request.Context(), key)
	if authErr != nil {
		metrics.Global().RejectedAuth.Add(1)
		apperr.Abort(c, authErr)
		return
	}
	projectID, authErr := resp.ToProjectID()
	if authErr != nil {
		metrics.Global().RejectedAuth.Add(1)
		apperr.Abort(c, authErr)
		return
	}

	// Rate limit.
	if !h.limiter.Allow(key.Raw, resp.RateLimitOrDefault(), 0) {
		metrics.Global().RejectedRate.Add(1)
		c.Header("Retry-After", "60")
		apperr.Abort(c, apperr.RateLimited())
		return
	}

	// 3. Parse.
	parsed, parseErr := ParsePayload(body)
	if parseErr != nil {
		metrics.Global().RejectedValid.Add(1)
		apperr.Abort(c, parseErr)
		return
	}
	metrics.Global().Received.Add(int64(len(parsed.Records)))

	// 4. Batch-size guard.
	if len(parsed.Records) > event.MaxBatchEvents {
		metrics.Global().RejectedValid.Add(1)
		apperr.Abort(c, apperr.BatchTooLarge(len(parsed.Records), event.MaxBatchEvents))
		return
	}

	// 5. Validate + transform, gated by the project's feature flags.
	flags := h.gateway.ResolveFlags(c.Request.Context(), projectID)
	accepted, validationErrs := TransformBatch(parsed.Records, projectID, h.now(), flags)
	if len(accepted) == 0 && len(parsed.Records) > 0 {
		details := make([]string, len(validationErrs))
		for i, e := range validationErrs {
			details[i] = e.String()
		}
		metrics.Global().RejectedValid.Add(1)
		apperr.Abort(c, apperr.InvalidPayloadWithDetails("no records in batch passed validation", details))
		return
	}
	metrics.Global().Validated.Add(int64(len(accepted)))

	// 6. Publish.
	if len(accepted) > 0 {
		if err := h.publisher.Publish(c.Request.Context(), accepted); err != nil {
			log.Error().Err(err).Msg("producer publish failed")
			metrics.Global().InsertErrors.Add(1)
			apperr.Abort(c, apperr.Downstream(err))
			return
		}
		metrics.Global().Sent.Add(int64(len(accepted)))
	}

	// 7. Response.
	out := IngestResponse{
		Success:   true,
		Received:  len(accepted),
		Timestamp: h.now().UnixMilli(),
	}
	if len(validationErrs) > 0 {
		details := make([]string, len(validationErrs))
		for i, e := range validationErrs {
			details[i] = e.String()
		}
		out.Errors = details
	}
	c.JSON(http.StatusOK, out)
}

// ClientIP implements the §6 X-Forwarded-For / X-Real-IP attribution
// rule: first comma-separated entry of X-Forwarded-For wins, then
// X-Real-IP, else empty.
func ClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return ""
}
