package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"skycover/internal/event"
	"skycover/internal/repository"
)

type EventsHandler struct {
	Repo          repository.Repository
	Hub           *event.Hub
	Logger        *zap.Logger
	SubscriberBuf int
}

func (h *EventsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/events")
	group.GET("", h.list)
	group.GET("/ws", h.stream)
}

// @Summary List recorded engine events
// @Tags events
// @Param type query string false "event type filter"
// @Param since query string false "RFC3339 lower bound"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/events [get]
func (h *EventsHandler) list(c *gin.Context) {
	params := repository.ListEventsParams{
		Limit:  intQuery(c, "limit", 100),
		Offset: intQuery(c, "offset", 0),
	}
	if typ := strings.TrimSpace(c.Query("type")); typ != "" {
		params.Type = &typ
	}
	if since := strings.TrimSpace(c.Query("since")); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			Error(c, http.StatusBadRequest, "since must be RFC3339", nil)
			return
		}
		ts = ts.UTC()
		params.Since = &ts
	}
	items, err := h.Repo.ListEvents(c.Request.Context(), params)
	if err != nil {
		failWith(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary Stream engine events over a websocket
// @Tags events
// @Router /api/v1/events/ws [get]
func (h *EventsHandler) stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ch, cancel := h.Hub.Subscribe(h.SubscriberBuf)
	defer cancel()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client gone")
			return
		case evt, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "hub closed")
				return
			}
			raw, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
				if h.Logger != nil {
					h.Logger.Debug("event stream write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
