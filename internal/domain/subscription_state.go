package domain

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionCancelling SubscriptionStatus = "cancelling"
	SubscriptionCancelled  SubscriptionStatus = "cancelled"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionInactive   SubscriptionStatus = "inactive"
)

// Processor-side subscription statuses that drive the mapping.
const (
	ProcessorStatusActive   = "active"
	ProcessorStatusCanceled = "canceled"
)

// SubscriptionState is the status-machine view of a subscription:
//
//	active <-> cancelling -> cancelled
//	active -> past_due -> active
//	past_due -> cancelled (deleted event only)
//
// cancelled is terminal. Every transition returns a new value; the receiver
// is never modified.
type SubscriptionState struct {
	Status            SubscriptionStatus
	CancelAtPeriodEnd bool
	CancelledAt       *time.Time
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
}

func (s SubscriptionState) Terminal() bool {
	return s.Status == SubscriptionCancelled
}

// withPeriod refreshes period boundaries; nil keeps the current value.
func (s SubscriptionState) withPeriod(start, end *time.Time) SubscriptionState {
	if start != nil {
		s.PeriodStart = start
	}
	if end != nil {
		s.PeriodEnd = end
	}
	return s
}

// Activate marks the subscription active with the processor's periods.
func (s SubscriptionState) Activate(start, end *time.Time) SubscriptionState {
	next := s.withPeriod(start, end)
	if s.Terminal() {
		return next
	}
	next.Status = SubscriptionActive
	return next
}

// DeriveFromProcessor maps the processor's status and cancel-at-period-end
// flag onto the local status. Periods are always refreshed.
func (s SubscriptionState) DeriveFromProcessor(processorStatus string, cancelAtPeriodEnd bool, start, end *time.Time, now time.Time) SubscriptionState {
	next := s.withPeriod(start, end)
	if s.Terminal() {
		return next
	}
	next.CancelAtPeriodEnd = cancelAtPeriodEnd
	switch {
	case processorStatus == ProcessorStatusActive && !cancelAtPeriodEnd:
		next.Status = SubscriptionActive
	case processorStatus == ProcessorStatusActive && cancelAtPeriodEnd:
		next.Status = SubscriptionCancelling
	case processorStatus == ProcessorStatusCanceled:
		next.Status = SubscriptionCancelled
		next.CancelledAt = stamp(s.CancelledAt, now)
	default:
		next.Status = SubscriptionInactive
	}
	return next
}

// InvoicePaid reactivates the subscription and moves the period end.
func (s SubscriptionState) InvoicePaid(periodEnd *time.Time) SubscriptionState {
	if s.Terminal() {
		return s
	}
	next := s.withPeriod(nil, periodEnd)
	next.Status = SubscriptionActive
	return next
}

// InvoiceFailed marks the subscription past due. Cancellation is left to
// dunning outside the reconciler.
func (s SubscriptionState) InvoiceFailed() SubscriptionState {
	if s.Terminal() {
		return s
	}
	next := s
	next.Status = SubscriptionPastDue
	return next
}

// Cancel moves to the terminal state.
func (s SubscriptionState) Cancel(at time.Time) SubscriptionState {
	next := s
	next.Status = SubscriptionCancelled
	next.CancelAtPeriodEnd = true
	next.CancelledAt = stamp(s.CancelledAt, at)
	return next
}

func stamp(existing *time.Time, at time.Time) *time.Time {
	if existing != nil {
		return existing
	}
	t := at.UTC()
	return &t
}
