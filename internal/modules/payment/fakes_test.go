package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"cleanhub/internal/database"
	"cleanhub/internal/domain"
	"cleanhub/internal/repository"
)

const testSecret = "whsec_test_secret"

type fakeProcessor struct {
	mu            sync.Mutex
	subscriptions map[string]*ProcessorSubscription
	products      map[string]string
	swapEnd       time.Time
	failSwap      error

	findCalls    int
	createdProds int
	createdPrice int
	swaps        []string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		subscriptions: map[string]*ProcessorSubscription{},
		products:      map[string]string{},
		swapEnd:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (p *fakeProcessor) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findCalls + p.createdProds + p.createdPrice + len(p.swaps)
}

func (p *fakeProcessor) GetSubscription(ctx context.Context, id string) (*ProcessorSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	cp := *sub
	return &cp, nil
}

func (p *fakeProcessor) FindProductByPlan(ctx context.Context, planID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findCalls++
	return p.products[planID], nil
}

func (p *fakeProcessor) CreateProduct(ctx context.Context, planID, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createdProds++
	id := "prod_" + planID
	p.products[planID] = id
	return id, nil
}

func (p *fakeProcessor) CreateMonthlyPrice(ctx context.Context, productID string, amount decimal.Decimal) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createdPrice++
	return fmt.Sprintf("price_%s_%d", productID, p.createdPrice), nil
}

func (p *fakeProcessor) SwapPrice(ctx context.Context, subscriptionID, priceID string) (*ProcessorSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSwap != nil {
		return nil, p.failSwap
	}
	p.swaps = append(p.swaps, subscriptionID+"->"+priceID)
	end := p.swapEnd
	return &ProcessorSubscription{ID: subscriptionID, Status: "active", PeriodEnd: &end}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []string
	fail  error
	alert []string
}

func (n *recordingNotifier) record(kind string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, kind)
	return n.fail
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, k := range n.sent {
		if k == kind {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) BookingConfirmed(ctx context.Context, b *domain.Booking) error {
	return n.record("booking_confirmed")
}
func (n *recordingNotifier) SubscriptionConfirmed(ctx context.Context, s *domain.Subscription, plan *domain.SubscriptionPlan) error {
	return n.record("subscription_confirmed")
}
func (n *recordingNotifier) SubscriptionUpdated(ctx context.Context, s *domain.Subscription) error {
	return n.record("subscription_updated")
}
func (n *recordingNotifier) SubscriptionCancelled(ctx context.Context, s *domain.Subscription) error {
	return n.record("subscription_cancelled")
}
func (n *recordingNotifier) SubscriptionUpgraded(ctx context.Context, s *domain.Subscription, plan *domain.SubscriptionPlan) error {
	return n.record("subscription_upgraded")
}
func (n *recordingNotifier) AdminAlert(ctx context.Context, subject, body string) error {
	n.mu.Lock()
	n.alert = append(n.alert, subject)
	n.mu.Unlock()
	return n.record("admin_alert")
}

type stubGuard struct {
	held     map[string]bool
	err      error
	released []string
}

func (g *stubGuard) Acquire(ctx context.Context, eventID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.held[eventID] {
		return false, nil
	}
	return true, nil
}

func (g *stubGuard) Release(ctx context.Context, eventID string) {
	g.released = append(g.released, eventID)
}

type failingBookings struct{}

func (failingBookings) CreateFromDraft(ctx context.Context, referenceID string, b *domain.Booking) error {
	return errors.New("database is locked")
}

type testEnv struct {
	db        *gorm.DB
	svc       *Service
	proc      *fakeProcessor
	notifier  *recordingNotifier
	catalog   *repository.CatalogRepository
	drafts    *repository.DraftRepository
	bookings  *repository.BookingRepository
	plans     *repository.PlanRepository
	subs      *repository.SubscriptionRepository
	events    *repository.WebhookEventRepository
	logs      []string
	mu        sync.Mutex
	fixedTime time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:payment_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &testEnv{
		db:        db,
		proc:      newFakeProcessor(),
		notifier:  &recordingNotifier{},
		catalog:   repository.NewCatalogRepository(db),
		drafts:    repository.NewDraftRepository(db),
		bookings:  repository.NewBookingRepository(db),
		plans:     repository.NewPlanRepository(db),
		subs:      repository.NewSubscriptionRepository(db),
		events:    repository.NewWebhookEventRepository(db),
		fixedTime: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	env.svc = env.build(Deps{})
	return env
}

// build wires a service over the env's stores; non-nil fields in override
// replace the defaults.
func (e *testEnv) build(override Deps) *Service {
	deps := Deps{
		Verifier:      NewVerifier(testSecret),
		Drafts:        e.drafts,
		Bookings:      e.bookings,
		Catalog:       e.catalog,
		Plans:         e.plans,
		Subscriptions: e.subs,
		Events:        e.events,
		Processor:     e.proc,
		Notifier:      e.notifier,
	}
	if override.Bookings != nil {
		deps.Bookings = override.Bookings
	}
	if override.Guard != nil {
		deps.Guard = override.Guard
	}
	svc := NewService(deps, func(format string, args ...interface{}) {
		e.mu.Lock()
		e.logs = append(e.logs, fmt.Sprintf(format, args...))
		e.mu.Unlock()
	})
	svc.now = func() time.Time { return e.fixedTime }
	return svc
}

func (e *testEnv) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

// seedCatalog creates one service with two variables and returns their ids.
func (e *testEnv) seedCatalog(t *testing.T) (serviceID, bedroomID, bathroomID int64) {
	t.Helper()
	svc := &domain.Service{Name: "Standard cleaning", IsActive: true, Variables: []domain.ServiceVariable{
		{Name: "Bedroom", UnitPrice: decimal.RequireFromString("30.00"), IsActive: true},
		{Name: "Bathroom", UnitPrice: decimal.RequireFromString("20.00"), IsActive: true},
	}}
	require.NoError(t, e.catalog.CreateService(context.Background(), svc))
	return svc.ID, svc.Variables[0].ID, svc.Variables[1].ID
}

func (e *testEnv) seedDraft(t *testing.T, ref string, services []domain.DraftService) {
	t.Helper()
	payload := domain.DraftPayload{
		Customer:   domain.DraftCustomer{Name: "Dana Client", Email: "dana@example.com", Phone: "+15550100"},
		Address:    domain.DraftAddress{Line1: "1 Main St", City: "Springfield", PostalCode: "12345"},
		Services:   services,
		Date:       "2026-04-02",
		TimeWindow: domain.DraftTimeWindow{Start: "09:00", End: "12:00"},
		Frequency:  domain.FrequencyWeekly,
		Price:      decimal.RequireFromString("80.00"),
		Notes:      "Key under the mat",
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, e.drafts.Create(context.Background(), &domain.PendingBookingDraft{ReferenceID: ref, Payload: string(raw)}))
}

func (e *testEnv) seedPlans(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.plans.Upsert(ctx, &domain.SubscriptionPlan{ID: "basic", Name: "Basic", Segment: "home", MonthlyPrice: decimal.NewFromInt(10), IsActive: true}))
	require.NoError(t, e.plans.Upsert(ctx, &domain.SubscriptionPlan{ID: "pro", Name: "Pro", Segment: "home", MonthlyPrice: decimal.NewFromInt(25), IsActive: true}))
}

func (e *testEnv) seedSubscription(t *testing.T, id, externalID string) *domain.Subscription {
	t.Helper()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	sub := &domain.Subscription{
		ID: id, UserID: 7, CustomerEmail: "sam@example.com", CustomerName: "Sam",
		PlanID: "basic", PlanName: "Basic", Revenue: decimal.NewFromInt(10),
		Status: domain.SubscriptionActive, StartedAt: &start, CurrentPeriodStart: &start, CurrentPeriodEnd: &end,
		ExternalSubscriptionID: externalID, ExternalCustomerID: "cus_1",
	}
	require.NoError(t, e.subs.UpsertByExternalID(context.Background(), sub, nil))
	return sub
}

func (e *testEnv) subscription(t *testing.T, id string) *domain.Subscription {
	t.Helper()
	sub, err := e.subs.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

// eventJSON builds a processor event envelope around object.
func eventJSON(t *testing.T, id, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC).Unix(),
		"api_version": "2025-03-31.basil",
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func sign(payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}

// deliver signs and handles payload as the processor would send it.
func (e *testEnv) deliver(t *testing.T, payload []byte) (Result, error) {
	t.Helper()
	return e.svc.HandleWebhook(context.Background(), payload, sign(payload))
}

func bookingSession(sessionID, ref string, amountCents int64) map[string]interface{} {
	return map[string]interface{}{
		"id":                  sessionID,
		"object":              "checkout.session",
		"mode":                "payment",
		"payment_status":      "paid",
		"client_reference_id": ref,
		"payment_intent":      "pi_" + sessionID,
		"amount_total":        amountCents,
		"currency":            "usd",
		"metadata":            map[string]string{"kind": "booking"},
	}
}

func subscriptionObj(id, status string, cancelAtPeriodEnd bool, start, end time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":                   id,
		"object":               "subscription",
		"customer":             "cus_1",
		"status":               status,
		"cancel_at_period_end": cancelAtPeriodEnd,
		"start_date":           start.Unix(),
		"items": map[string]interface{}{
			"data": []map[string]interface{}{{
				"id":                   "si_" + id,
				"current_period_start": start.Unix(),
				"current_period_end":   end.Unix(),
			}},
		},
		"metadata": map[string]string{},
	}
}

func invoiceObj(id, subscriptionID string, periodEnd time.Time) map[string]interface{} {
	md := map[string]string{}
	if subscriptionID != "" {
		md["subscription_id"] = subscriptionID
	}
	return map[string]interface{}{
		"id":         id,
		"object":     "invoice",
		"customer":   "cus_1",
		"period_end": periodEnd.Add(-30 * 24 * time.Hour).Unix(),
		"lines": map[string]interface{}{
			"data": []map[string]interface{}{{"period": map[string]interface{}{"end": periodEnd.Unix()}}},
		},
		"metadata": md,
	}
}
