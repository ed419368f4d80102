package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cleanhub/internal/domain"
)

// Provider is the ledger key for events from the payment processor.
const Provider = "stripe"

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
)

// Result describes how one delivery was handled.
type Result struct {
	EventID   string  `json:"event_id"`
	EventType string  `json:"event_type"`
	Outcome   Outcome `json:"status"`
	Reason    string  `json:"reason,omitempty"`
}

// Deps are the collaborators of the reconciler. Guard and Notifier may be
// nil.
type Deps struct {
	Verifier      *Verifier
	Drafts        draftReader
	Bookings      bookingWriter
	Catalog       catalogReader
	Plans         planReader
	Subscriptions subscriptionStore
	Events        eventLedger
	Processor     Processor
	Notifier      Notifier
	Guard         InflightGuard
}

// Service applies verified processor events to bookings and subscriptions.
type Service struct {
	verifier  *Verifier
	drafts    draftReader
	bookings  bookingWriter
	catalog   catalogReader
	plans     planReader
	subs      subscriptionStore
	events    eventLedger
	processor Processor
	notifier  Notifier
	guard     InflightGuard
	router    *Router
	loggerf   func(format string, args ...interface{})
	now       func() time.Time
}

func NewService(deps Deps, loggerf func(format string, args ...interface{})) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	s := &Service{
		verifier:  deps.Verifier,
		drafts:    deps.Drafts,
		bookings:  deps.Bookings,
		catalog:   deps.Catalog,
		plans:     deps.Plans,
		subs:      deps.Subscriptions,
		events:    deps.Events,
		processor: deps.Processor,
		notifier:  deps.Notifier,
		guard:     deps.Guard,
		loggerf:   loggerf,
		now:       func() time.Time { return time.Now().UTC() },
	}

	if s.processor == nil {
		s.processor = noProcessor{}
	}

	r := NewRouter()
	r.Handle(EventCheckoutCompleted, s.handleCheckoutCompleted)
	r.Handle(EventCheckoutAsyncSucceeded, s.handleCheckoutCompleted)
	r.Handle(EventSubscriptionCreated, s.handleSubscriptionCreated)
	r.Handle(EventSubscriptionUpdated, s.handleSubscriptionUpdated)
	r.Handle(EventSubscriptionDeleted, s.handleSubscriptionDeleted)
	r.Handle(EventInvoicePaymentPassed, s.handleInvoicePaid)
	r.Handle(EventInvoicePaymentFailed, s.handleInvoiceFailed)
	s.router = r
	return s
}

func (s *Service) Router() *Router { return s.router }

// HandleWebhook verifies a raw delivery and applies it. A nil error means the
// delivery may be acknowledged; ErrInvalidSignature and ErrInFlight are
// returned as-is, anything else is a durable failure worth a retry.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Result, error) {
	ev, err := s.verifier.Verify(payload, signature)
	if err != nil {
		s.loggerf("level=warn msg=webhook rejected err=%v", err)
		if errors.Is(err, ErrInvalidSignature) {
			return Result{}, ErrInvalidSignature
		}
		return Result{}, err
	}
	return s.dispatch(ctx, ev)
}

// Replay runs a stored ledger event through its handler again. The stored
// payload was verified when it was received.
func (s *Service) Replay(ctx context.Context, ledgerID int64) (Result, error) {
	rec, err := s.events.GetByID(ctx, ledgerID)
	if err != nil {
		return Result{}, fmt.Errorf("load webhook event %d: %w", ledgerID, err)
	}
	if rec == nil {
		return Result{}, ErrEventNotFound
	}
	ev, err := ParseEvent([]byte(rec.Payload))
	if err != nil {
		return Result{}, err
	}
	h, ok := s.router.Route(ev.Type)
	if !ok {
		return Result{EventID: ev.ID, EventType: ev.Type, Outcome: OutcomeIgnored}, nil
	}
	release, err := s.acquire(ctx, ev.ID)
	if err != nil {
		return Result{EventID: ev.ID, EventType: ev.Type}, err
	}
	defer release()

	s.loggerf("level=info msg=webhook replay event_id=%s type=%s ledger_id=%d", ev.ID, ev.Type, rec.ID)
	return s.run(ctx, rec.ID, h, ev)
}

func (s *Service) dispatch(ctx context.Context, ev Event) (Result, error) {
	res := Result{EventID: ev.ID, EventType: ev.Type}
	h, ok := s.router.Route(ev.Type)
	if !ok {
		s.loggerf("level=info msg=webhook ignored event_id=%s type=%s", ev.ID, ev.Type)
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	release, err := s.acquire(ctx, ev.ID)
	if err != nil {
		return res, err
	}
	defer release()

	rec := &domain.WebhookEvent{
		Provider:        Provider,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		Payload:         string(ev.Payload),
	}
	created, err := s.events.RecordReceived(ctx, rec)
	if err != nil {
		return res, fmt.Errorf("record webhook event %s: %w", ev.ID, err)
	}
	if !created && rec.Applied() {
		s.loggerf("level=info msg=webhook duplicate event_id=%s type=%s", ev.ID, ev.Type)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	return s.run(ctx, rec.ID, h, ev)
}

func (s *Service) run(ctx context.Context, ledgerID int64, h HandlerFunc, ev Event) (Result, error) {
	res := Result{EventID: ev.ID, EventType: ev.Type}
	herr := h(ctx, ev)

	procErr := ""
	if herr != nil {
		procErr = herr.Error()
	}
	if err := s.events.MarkProcessed(ctx, ledgerID, procErr); err != nil {
		s.loggerf("level=error msg=webhook ledger update failed event_id=%s err=%v", ev.ID, err)
	}

	switch {
	case herr == nil:
		s.loggerf("level=info msg=webhook processed event_id=%s type=%s", ev.ID, ev.Type)
		res.Outcome = OutcomeProcessed
		return res, nil
	case permanent(herr):
		s.loggerf("level=warn msg=webhook rejected permanently event_id=%s type=%s err=%v", ev.ID, ev.Type, herr)
		res.Outcome = OutcomeRejected
		res.Reason = herr.Error()
		return res, nil
	default:
		s.loggerf("level=error msg=webhook processing failed event_id=%s type=%s err=%v", ev.ID, ev.Type, herr)
		return res, herr
	}
}

// acquire takes the in-flight lock. A guard backend error is logged and
// processing continues; the ledger and unique keys still prevent double
// application.
func (s *Service) acquire(ctx context.Context, eventID string) (func(), error) {
	noop := func() {}
	if s.guard == nil {
		return noop, nil
	}
	ok, err := s.guard.Acquire(ctx, eventID)
	if err != nil {
		s.loggerf("level=warn msg=inflight guard unavailable event_id=%s err=%v", eventID, err)
		return noop, nil
	}
	if !ok {
		return noop, ErrInFlight
	}
	return func() { s.guard.Release(context.WithoutCancel(ctx), eventID) }, nil
}

// notify runs one best-effort notification. Failures are logged only.
func (s *Service) notify(ctx context.Context, kind string, send func(ctx context.Context, n Notifier) error) {
	if s.notifier == nil {
		return
	}
	if err := send(ctx, s.notifier); err != nil {
		s.loggerf("level=warn msg=notification failed kind=%s err=%v", kind, err)
	}
}

func (s *Service) alertAdmin(ctx context.Context, subject, body string) {
	s.notify(ctx, "admin_alert", func(ctx context.Context, n Notifier) error {
		return n.AdminAlert(ctx, subject, body)
	})
}
