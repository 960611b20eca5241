// Package live streams committed audit events to connected clients over
// Server-Sent Events. Delivery is best effort: a slow or gone subscriber
// loses events rather than stalling the commit path.
package live

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/bidline-lab/bidline/internal/core/audit"
	httperr "github.com/bidline-lab/bidline/internal/core/errors"
)

const subscriberBuffer = 64

// Hub fans committed events out to subscribers. It satisfies the
// engine's notifier contract.
type Hub struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[chan audit.Event]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[chan audit.Event]struct{}),
	}
}

// Publish delivers ev to every subscriber without blocking. Subscribers
// whose buffers are full skip the event; the audit log remains the
// source of truth and a catch-up read fills any gap.
func (h *Hub) Publish(ev audit.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Warn("[Live] subscriber buffer full, dropping event",
				"partition", ev.Partition, "seq", ev.Seq)
		}
	}
}

// Subscribe registers a new subscriber channel. The returned cancel
// func must be called exactly once when the subscriber is done.
func (h *Hub) Subscribe() (<-chan audit.Event, func()) {
	ch := make(chan audit.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount reports how many clients are connected.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// RegisterRoutes registers the live stream route.
func (h *Hub) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/live", h.HandleStream)
}

// HandleStream serves GET /v1/live. A ?year=N filter limits the stream
// to one bid year's partition.
func (h *Hub) HandleStream(c *gin.Context) {
	yearFilter := 0
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y <= 0 {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidJsonError,
				Message:   "year must be a positive integer",
			})
			return
		}
		yearFilter = y
	}

	events, cancel := h.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if yearFilter != 0 && ev.Partition != yearFilter {
				return true
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("[Live] marshaling event", "error", err)
				return true
			}
			c.SSEvent("audit", string(payload))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
