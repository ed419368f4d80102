package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cleanhub/internal/domain"
)

type draftReader interface {
	GetByReferenceID(ctx context.Context, referenceID string) (*domain.PendingBookingDraft, error)
}

// bookingWriter creates the booking and consumes its draft in one transaction.
type bookingWriter interface {
	CreateFromDraft(ctx context.Context, referenceID string, b *domain.Booking) error
}

type catalogReader interface {
	Resolve(ctx context.Context, serviceID, variableID int64) (*domain.CatalogItem, error)
}

type planReader interface {
	GetByID(ctx context.Context, id string) (*domain.SubscriptionPlan, error)
}

type subscriptionStore interface {
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error)
	UpsertByExternalID(ctx context.Context, sub *domain.Subscription, columns []string) error
	// UpdateState reports false when the row was already cancelled.
	UpdateState(ctx context.Context, id string, st domain.SubscriptionState) (bool, error)
	ClaimCancellationNotice(ctx context.Context, id string, at time.Time) (bool, error)
	ApplyPlanChange(ctx context.Context, id string, ch domain.PlanChange) error
}

type eventLedger interface {
	RecordReceived(ctx context.Context, ev *domain.WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, id int64, procErr string) error
	GetByID(ctx context.Context, id int64) (*domain.WebhookEvent, error)
}

// ProcessorSubscription is the processor's view of a recurring subscription.
type ProcessorSubscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	ItemID            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
}

// Processor is the payment processor's API as the reconciler uses it.
type Processor interface {
	GetSubscription(ctx context.Context, id string) (*ProcessorSubscription, error)
	// FindProductByPlan returns "" when no product carries the plan id tag.
	FindProductByPlan(ctx context.Context, planID string) (string, error)
	CreateProduct(ctx context.Context, planID, name string) (string, error)
	CreateMonthlyPrice(ctx context.Context, productID string, amount decimal.Decimal) (string, error)
	// SwapPrice moves the subscription's line item to priceID without proration.
	SwapPrice(ctx context.Context, subscriptionID, priceID string) (*ProcessorSubscription, error)
}

// Notifier sends transactional email. Errors are logged by the caller and
// never undo a reconciliation.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b *domain.Booking) error
	SubscriptionConfirmed(ctx context.Context, s *domain.Subscription, plan *domain.SubscriptionPlan) error
	SubscriptionUpdated(ctx context.Context, s *domain.Subscription) error
	SubscriptionCancelled(ctx context.Context, s *domain.Subscription) error
	SubscriptionUpgraded(ctx context.Context, s *domain.Subscription, plan *domain.SubscriptionPlan) error
	AdminAlert(ctx context.Context, subject, body string) error
}

// noProcessor stands in when no API key is configured. Events that need the
// processor fail and stay in the ledger for a later retry.
type noProcessor struct{}

func (noProcessor) GetSubscription(context.Context, string) (*ProcessorSubscription, error) {
	return nil, ErrNoProcessor
}

func (noProcessor) FindProductByPlan(context.Context, string) (string, error) {
	return "", ErrNoProcessor
}

func (noProcessor) CreateProduct(context.Context, string, string) (string, error) {
	return "", ErrNoProcessor
}

func (noProcessor) CreateMonthlyPrice(context.Context, string, decimal.Decimal) (string, error) {
	return "", ErrNoProcessor
}

func (noProcessor) SwapPrice(context.Context, string, string) (*ProcessorSubscription, error) {
	return nil, ErrNoProcessor
}

// InflightGuard keeps two deliveries of one event from running concurrently.
type InflightGuard interface {
	Acquire(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string)
}
