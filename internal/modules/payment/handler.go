package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 16

type Handler struct {
	service *Service
	loggerf func(format string, args ...interface{})
}

func NewHandler(service *Service, loggerf func(format string, args ...interface{})) *Handler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Handler{service: service, loggerf: loggerf}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/stripe", h.StripeWebhook)
}

// StripeWebhook godoc
// @Summary      Payment processor webhook
// @Description  Verifies the signature over the raw body and reconciles the event (idempotent)
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Success      200 {object} Result
// @Failure      400 {object} map[string]string
// @Failure      409 {object} map[string]string
// @Failure      500 {object} map[string]string
// @Router       /webhooks/stripe [post]
func (h *Handler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.loggerf("level=warn msg=webhook body read failed err=%v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.service.HandleWebhook(c.Request.Context(), payload, c.GetHeader(SignatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true, "status": res.Outcome})
	case errors.Is(err, ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	case errors.Is(err, ErrMalformedEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
	case errors.Is(err, ErrInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "event is being processed, retry later"})
	default:
		h.loggerf("level=error msg=webhook failed event_id=%s type=%s err=%v", res.EventID, res.EventType, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	}
}
