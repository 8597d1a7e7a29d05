package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"arena/internal/events"
)

// EventsHandler serves the live change feed as server-sent events.
type EventsHandler struct {
	hub *events.Hub
}

// NewEventsHandler creates the handler.
func NewEventsHandler(hub *events.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream holds the connection open and forwards hub messages until the
// client disconnects.
func (h *EventsHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	ch := h.hub.Register()
	defer h.hub.Unregister(ch)

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			if msg.Event != "" {
				c.SSEvent(msg.Event, msg.Data)
			} else {
				c.SSEvent("message", msg.Data)
			}
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
