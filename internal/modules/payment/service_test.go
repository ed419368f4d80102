package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanhub/internal/domain"
)

func TestBookingCheckoutReplayCreatesOneBooking(t *testing.T) {
	env := newTestEnv(t)
	svcID, bedroom, bathroom := env.seedCatalog(t)
	env.seedDraft(t, "ref-100", []domain.DraftService{
		{ServiceID: svcID, VariableID: bedroom, Quantity: 2},
		{ServiceID: svcID, VariableID: bathroom, Quantity: 1},
	})

	payload := eventJSON(t, "evt_book_1", EventCheckoutCompleted, bookingSession("cs_100", "ref-100", 8000))

	res, err := env.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	res, err = env.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	// Same session delivered under a new event id finds no draft.
	res, err = env.deliver(t, eventJSON(t, "evt_book_2", EventCheckoutCompleted, bookingSession("cs_100", "ref-100", 8000)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	assert.Equal(t, int64(1), env.countRows(t, &domain.Booking{}))
	assert.Equal(t, int64(0), env.countRows(t, &domain.PendingBookingDraft{}))
	assert.Equal(t, 1, env.notifier.count("booking_confirmed"))

	b, err := env.bookings.GetByReferenceID(context.Background(), "ref-100")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.Equal(t, domain.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, "cs_100", b.CheckoutSessionID)
	assert.Equal(t, "pi_cs_100", b.PaymentIntentID)
	assert.Equal(t, domain.FrequencyWeekly, b.Frequency)
	assert.True(t, b.TotalPrice.Equal(decimal.NewFromInt(80)))
	require.Len(t, b.Lines, 2)
}

func TestBookingSkipsLinesMissingFromCatalog(t *testing.T) {
	env := newTestEnv(t)
	svcID, bedroom, bathroom := env.seedCatalog(t)
	require.NoError(t, env.catalog.DeactivateVariable(context.Background(), bathroom))
	env.seedDraft(t, "ref-200", []domain.DraftService{
		{ServiceID: svcID, VariableID: bedroom, Quantity: 3},
		{ServiceID: svcID, VariableID: bathroom, Quantity: 1},
		{ServiceID: 999, VariableID: 998, Quantity: 1},
	})

	res, err := env.deliver(t, eventJSON(t, "evt_book_200", EventCheckoutCompleted, bookingSession("cs_200", "ref-200", 9000)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	b, err := env.bookings.GetByReferenceID(context.Background(), "ref-200")
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Len(t, b.Lines, 1)
	assert.Equal(t, "Bedroom", b.Lines[0].VariableName)
	assert.Equal(t, 3, b.Lines[0].Quantity)
	assert.True(t, b.Lines[0].LinePrice.Equal(decimal.NewFromInt(90)))
}

func TestBookingUsesCurrentCatalogPrice(t *testing.T) {
	env := newTestEnv(t)
	svcID, bedroom, _ := env.seedCatalog(t)
	env.seedDraft(t, "ref-price", []domain.DraftService{{ServiceID: svcID, VariableID: bedroom, Quantity: 1}})
	require.NoError(t, env.db.Model(&domain.ServiceVariable{}).Where("id = ?", bedroom).
		Updates(map[string]interface{}{"unit_price": decimal.RequireFromString("35.00"), "name": "Large bedroom"}).Error)

	_, err := env.deliver(t, eventJSON(t, "evt_price", EventCheckoutCompleted, bookingSession("cs_price", "ref-price", 3500)))
	require.NoError(t, err)

	b, err := env.bookings.GetByReferenceID(context.Background(), "ref-price")
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Len(t, b.Lines, 1)
	assert.Equal(t, "Large bedroom", b.Lines[0].VariableName)
	assert.True(t, b.Lines[0].UnitPrice.Equal(decimal.NewFromInt(35)))
}

func TestBookingWithoutDraftIsNoop(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.deliver(t, eventJSON(t, "evt_nodraft", EventCheckoutCompleted, bookingSession("cs_x", "ref-missing", 1000)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, int64(0), env.countRows(t, &domain.Booking{}))
	assert.Zero(t, env.notifier.count("booking_confirmed"))
}

func TestUnpaidCheckoutWaitsForAsyncSuccess(t *testing.T) {
	env := newTestEnv(t)
	svcID, bedroom, _ := env.seedCatalog(t)
	env.seedDraft(t, "ref-async", []domain.DraftService{{ServiceID: svcID, VariableID: bedroom, Quantity: 1}})

	sess := bookingSession("cs_async", "ref-async", 3000)
	sess["payment_status"] = "unpaid"
	_, err := env.deliver(t, eventJSON(t, "evt_async_1", EventCheckoutCompleted, sess))
	require.NoError(t, err)
	assert.Equal(t, int64(0), env.countRows(t, &domain.Booking{}))

	sess["payment_status"] = "paid"
	_, err = env.deliver(t, eventJSON(t, "evt_async_2", EventCheckoutAsyncSucceeded, sess))
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.countRows(t, &domain.Booking{}))
}

func TestNotificationFailureKeepsBooking(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.fail = errors.New("smtp: connection refused")
	svcID, bedroom, _ := env.seedCatalog(t)
	env.seedDraft(t, "ref-300", []domain.DraftService{{ServiceID: svcID, VariableID: bedroom, Quantity: 1}})

	res, err := env.deliver(t, eventJSON(t, "evt_book_300", EventCheckoutCompleted, bookingSession("cs_300", "ref-300", 3000)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, int64(1), env.countRows(t, &domain.Booking{}))
	assert.Equal(t, 1, env.notifier.count("booking_confirmed"))
}

func TestDurableFailureIsSurfacedAndRetried(t *testing.T) {
	env := newTestEnv(t)
	svcID, bedroom, _ := env.seedCatalog(t)
	env.seedDraft(t, "ref-400", []domain.DraftService{{ServiceID: svcID, VariableID: bedroom, Quantity: 1}})
	payload := eventJSON(t, "evt_book_400", EventCheckoutCompleted, bookingSession("cs_400", "ref-400", 3000))

	broken := env.build(Deps{Bookings: failingBookings{}})
	_, err := broken.HandleWebhook(context.Background(), payload, sign(payload))
	require.Error(t, err)
	assert.Zero(t, env.notifier.count("booking_confirmed"))

	rec, err := env.events.List(context.Background(), true, 10)
	require.NoError(t, err)
	require.Len(t, rec, 1)
	assert.Contains(t, rec[0].ProcessingError, "database is locked")

	res, err := env.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome, "a failed event is not a duplicate")
	assert.Equal(t, int64(1), env.countRows(t, &domain.Booking{}))
}

func TestInvalidSignatureWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	svcID, bedroom, _ := env.seedCatalog(t)
	env.seedDraft(t, "ref-sig", []domain.DraftService{{ServiceID: svcID, VariableID: bedroom, Quantity: 1}})
	payload := eventJSON(t, "evt_sig", EventCheckoutCompleted, bookingSession("cs_sig", "ref-sig", 3000))

	_, err := env.svc.HandleWebhook(context.Background(), payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = env.svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tampered := append([]byte{}, payload...)
	header := sign(payload)
	tampered[len(tampered)-2] = ' '
	_, err = env.svc.HandleWebhook(context.Background(), tampered, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.Equal(t, int64(0), env.countRows(t, &domain.WebhookEvent{}))
	assert.Equal(t, int64(0), env.countRows(t, &domain.Booking{}))
	assert.Equal(t, int64(1), env.countRows(t, &domain.PendingBookingDraft{}))
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.deliver(t, eventJSON(t, "evt_unknown", "charge.dispute.funds_reinstated", map[string]interface{}{"id": "du_1"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, int64(0), env.countRows(t, &domain.WebhookEvent{}))
}

func TestInflightDeliveryIsTurnedAway(t *testing.T) {
	env := newTestEnv(t)
	guard := &stubGuard{held: map[string]bool{"evt_busy": true}}
	env.svc = env.build(Deps{Guard: guard})

	_, err := env.deliver(t, eventJSON(t, "evt_busy", EventSubscriptionDeleted, subscriptionObj("sub_busy", "canceled", false, time.Now(), time.Now())))
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, int64(0), env.countRows(t, &domain.WebhookEvent{}))

	_, err = env.deliver(t, eventJSON(t, "evt_free", EventSubscriptionDeleted, subscriptionObj("sub_busy", "canceled", false, time.Now(), time.Now())))
	require.NoError(t, err)
	assert.Equal(t, []string{"evt_free"}, guard.released)
}

func TestGuardOutageDoesNotBlockProcessing(t *testing.T) {
	env := newTestEnv(t)
	env.svc = env.build(Deps{Guard: &stubGuard{err: errors.New("redis: connection refused")}})

	res, err := env.deliver(t, eventJSON(t, "evt_guard_down", EventSubscriptionDeleted, subscriptionObj("sub_none", "canceled", false, time.Now(), time.Now())))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
}

func TestReplayRerunsStoredEvent(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlans(t)
	sub := env.seedSubscription(t, "aaaaaaaa-0000-0000-0000-000000000001", "sub_replay")

	payload := eventJSON(t, "evt_replay", EventInvoicePaymentFailed, invoiceObj("in_1", "sub_replay", time.Now()))
	_, err := env.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionPastDue, env.subscription(t, sub.ID).Status)

	// Restore the row by hand, then replay the stored event.
	written, err := env.subs.UpdateState(context.Background(), sub.ID, domain.SubscriptionState{Status: domain.SubscriptionActive})
	require.NoError(t, err)
	require.True(t, written)
	stored, err := env.events.List(context.Background(), false, 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	res, err := env.svc.Replay(context.Background(), stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, domain.SubscriptionPastDue, env.subscription(t, sub.ID).Status)

	_, err = env.svc.Replay(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrEventNotFound)
}
