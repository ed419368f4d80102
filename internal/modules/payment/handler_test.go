package payment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanhub/internal/domain"
)

func setupRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc, nil).RegisterPublicRoutes(r.Group("/api/v1"))
	return r
}

func performWebhook(r http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWebhookEndpointStatuses(t *testing.T) {
	env := newTestEnv(t)
	r := setupRouter(env.svc)
	now := time.Now().UTC()
	payload := eventJSON(t, "evt_http_1", EventSubscriptionDeleted, subscriptionObj("sub_http", "canceled", false, now, now))

	w := performWebhook(r, payload, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid signature", decodeBody(t, w)["error"])

	w = performWebhook(r, payload, "t=123,v1=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int64(0), env.countRows(t, &domain.WebhookEvent{}))

	w = performWebhook(r, payload, sign(payload))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "processed", body["status"])

	w = performWebhook(r, payload, sign(payload))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decodeBody(t, w)["status"])

	unknown := eventJSON(t, "evt_http_2", "payout.paid", map[string]interface{}{"id": "po_1"})
	w = performWebhook(r, unknown, sign(unknown))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ignored", decodeBody(t, w)["status"])
}

func TestWebhookEndpointConflictWhileInFlight(t *testing.T) {
	env := newTestEnv(t)
	svc := env.build(Deps{Guard: &stubGuard{held: map[string]bool{"evt_http_busy": true}}})
	r := setupRouter(svc)
	now := time.Now().UTC()
	payload := eventJSON(t, "evt_http_busy", EventSubscriptionUpdated, subscriptionObj("sub_http", "active", false, now, now))

	w := performWebhook(r, payload, sign(payload))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWebhookEndpointServerErrorOnDurableFailure(t *testing.T) {
	env := newTestEnv(t)
	svcID, bedroom, _ := env.seedCatalog(t)
	env.seedDraft(t, "ref-http", []domain.DraftService{{ServiceID: svcID, VariableID: bedroom, Quantity: 1}})
	r := setupRouter(env.build(Deps{Bookings: failingBookings{}}))
	payload := eventJSON(t, "evt_http_500", EventCheckoutCompleted, bookingSession("cs_http", "ref-http", 3000))

	w := performWebhook(r, payload, sign(payload))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, int64(1), env.countRows(t, &domain.PendingBookingDraft{}))
}

func TestWebhookEndpointAcknowledgesRejectedUpgrade(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlans(t)
	sub := env.seedSubscription(t, "20000000-0000-0000-0000-000000000001", "sub_http_up")
	r := setupRouter(env.svc)
	payload := eventJSON(t, "evt_http_up", EventCheckoutCompleted, upgradeSession("cs_http_up", sub.ID, "pro", "1.00"))

	w := performWebhook(r, payload, sign(payload))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", decodeBody(t, w)["status"])
}
