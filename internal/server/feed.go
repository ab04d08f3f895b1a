package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dinehall/dinehall/internal/changefeed"
	"github.com/dinehall/dinehall/internal/restaurantcontext"
	"github.com/gin-gonic/gin"
)

// StreamRestaurantFeed streams the restaurant-wide change feed over SSE.
// Every table, session, order and item change in the restaurant lands
// here; dashboards resubscribe on disconnect and refetch on each event.
func (s *Server) StreamRestaurantFeed(c *gin.Context) {
	restaurantID, ok := restaurantcontext.RestaurantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	s.streamFeed(c, changefeed.RestaurantTopic(restaurantID))
}

// StreamNotificationFeed streams one member's inbox changes over SSE.
func (s *Server) StreamNotificationFeed(c *gin.Context) {
	restaurantID, ok := restaurantcontext.RestaurantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	userID, ok := restaurantcontext.UserIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	s.streamFeed(c, changefeed.UserTopic(restaurantID, userID))
}

func (s *Server) streamFeed(c *gin.Context, topic string) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	subscription, backlog, err := s.hub.Subscribe(topic)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	for _, event := range backlog {
		if err := writeFeedEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeFeedEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeFeedEvent(w io.Writer, event changefeed.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\ndata: %s\n\n", event.ID, data)
	return err
}
