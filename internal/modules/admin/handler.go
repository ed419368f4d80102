package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cleanhub/internal/modules/payment"
	"cleanhub/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type Handler struct {
	service  *Service
	hub      FeedHub
	upgrader websocket.Upgrader
	loggerf  func(format string, args ...interface{})
}

// NewHandler wires the admin routes. allowedOrigins limits which dashboards
// may open the live feed; an empty list admits any origin.
func NewHandler(service *Service, hub FeedHub, allowedOrigins []string, loggerf func(format string, args ...interface{})) *Handler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	origins := map[string]bool{}
	for _, o := range allowedOrigins {
		origins[strings.TrimSpace(o)] = true
	}
	return &Handler{
		service: service,
		hub:     hub,
		loggerf: loggerf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
	}
}

// RegisterRoutes expects a group already guarded by JWT auth and AdminOnly.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/webhook-events", h.ListWebhookEvents)
	admin.POST("/webhook-events/:id/replay", h.ReplayWebhookEvent)
	admin.GET("/subscriptions/:id", h.GetSubscription)
	admin.GET("/feed", h.Feed)
}

// ListWebhookEvents godoc
// @Summary      List received webhook events
// @Tags         Admin
// @Security     BearerAuth
// @Param        failed query bool false "only events not yet applied"
// @Param        limit  query int  false "max rows (1-200)"
// @Router       /admin/webhook-events [get]
func (h *Handler) ListWebhookEvents(c *gin.Context) {
	var q ListWebhookEventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	events, err := h.service.ListWebhookEvents(c.Request.Context(), q.Failed, q.Limit)
	if err != nil {
		h.loggerf("level=error msg=list webhook events failed err=%v", err)
		response.Error(c, http.StatusInternalServerError, "FETCH_ERROR", "Failed to load webhook events")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// ReplayWebhookEvent godoc
// @Summary      Re-run a stored webhook event
// @Tags         Admin
// @Security     BearerAuth
// @Param        id path int true "ledger id"
// @Router       /admin/webhook-events/{id}/replay [post]
func (h *Handler) ReplayWebhookEvent(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid webhook event ID")
		return
	}

	res, err := h.service.ReplayWebhookEvent(c.Request.Context(), id)
	switch {
	case err == nil:
		h.loggerf("level=info msg=webhook replayed ledger_id=%d by=%d outcome=%s", id, c.GetInt64("user_id"), res.Outcome)
		response.Success(c, http.StatusOK, res)
	case errors.Is(err, payment.ErrEventNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Webhook event not found")
	case errors.Is(err, payment.ErrInFlight):
		response.Error(c, http.StatusConflict, "IN_FLIGHT", "Event is being processed, retry later")
	case errors.Is(err, payment.ErrMalformedEvent):
		response.Error(c, http.StatusUnprocessableEntity, "MALFORMED_EVENT", err.Error())
	default:
		h.loggerf("level=error msg=webhook replay failed ledger_id=%d err=%v", id, err)
		response.ErrorWithDetails(c, http.StatusBadGateway, "REPLAY_FAILED", "Replay failed", err.Error())
	}
}

// GetSubscription godoc
// @Summary      Inspect a subscription
// @Tags         Admin
// @Security     BearerAuth
// @Param        id path string true "subscription id"
// @Router       /admin/subscriptions/{id} [get]
func (h *Handler) GetSubscription(c *gin.Context) {
	sub, err := h.service.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "Subscription not found")
			return
		}
		h.loggerf("level=error msg=get subscription failed id=%s err=%v", c.Param("id"), err)
		response.Error(c, http.StatusInternalServerError, "FETCH_ERROR", "Failed to load subscription")
		return
	}
	response.Success(c, http.StatusOK, sub)
}

// Feed upgrades to a websocket that receives staff alerts as they happen.
// Endpoint: GET /admin/feed?token=JWT
func (h *Handler) Feed(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.loggerf("level=warn msg=feed upgrade failed err=%v", err)
		return
	}

	userID := c.GetInt64("user_id")
	h.hub.Register(userID, conn)
	h.loggerf("level=info msg=feed connected user_id=%d", userID)
	defer func() {
		h.hub.Unregister(conn)
		h.loggerf("level=info msg=feed disconnected user_id=%d", userID)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	// The feed is one-way; reads only service control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.loggerf("level=warn msg=feed read error user_id=%d err=%v", userID, err)
			}
			return
		}
	}
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func parseIDParam(c *gin.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
