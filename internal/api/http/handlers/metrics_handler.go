package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// QueueDepth reports how many notification jobs are waiting.
type QueueDepth interface {
	Len(ctx context.Context) (int64, error)
}

// MetricsHandler exposes in-process counters.
type MetricsHandler struct {
	metrics *observability.Metrics
	queue   QueueDepth
}

type metricsResponse struct {
	observability.Snapshot
	NotificationQueueDepth *int64 `json:"notification_queue_depth,omitempty"`
	NotificationQueueError string `json:"notification_queue_error,omitempty"`
}

// NewMetricsHandler constructs handler. queue may be nil when notifications
// are sent inline.
func NewMetricsHandler(metrics *observability.Metrics, queue QueueDepth) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, queue: queue}
}

// Snapshot handles GET /metrics.
func (h *MetricsHandler) Snapshot(c *fiber.Ctx) error {
	resp := metricsResponse{Snapshot: h.metrics.Snapshot()}
	if h.queue != nil {
		depth, err := h.queue.Len(c.UserContext())
		if err != nil {
			resp.NotificationQueueError = err.Error()
		} else {
			resp.NotificationQueueDepth = &depth
		}
	}
	return c.JSON(fiber.Map{"data": resp})
}
