package payment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"cleanhub/internal/domain"
)

// Columns a repeated activation may overwrite on an existing row. status is
// always written, guarded against leaving cancelled.
var (
	checkoutColumns = []string{
		"user_id", "customer_email", "customer_name",
		"plan_id", "plan_name", "revenue",
		"started_at", "current_period_start", "current_period_end",
		"external_customer_id",
	}
	activationColumns = []string{"started_at", "current_period_start", "current_period_end"}
)

// activateFromCheckout creates or refreshes the subscription paid for by a
// subscription-mode checkout.
func (s *Service) activateFromCheckout(ctx context.Context, sess checkoutSession) error {
	extID := sess.Subscription.String()
	planID := sess.Metadata.get("plan_id")
	userID, uerr := strconv.ParseInt(sess.Metadata.get("user_id"), 10, 64)
	if extID == "" || planID == "" || uerr != nil {
		s.loggerf("level=warn msg=subscription checkout missing linkage session_id=%s subscription_id=%s plan_id=%s user_id=%q",
			sess.ID, extID, planID, sess.Metadata.get("user_id"))
		return nil
	}

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("load plan %s: %w", planID, err)
	}
	if plan == nil {
		s.loggerf("level=warn msg=subscription plan not found plan_id=%s session_id=%s", planID, sess.ID)
		return nil
	}

	remote, err := s.processor.GetSubscription(ctx, extID)
	if err != nil {
		return fmt.Errorf("fetch processor subscription %s: %w", extID, err)
	}

	existing, err := s.subs.GetByExternalID(ctx, extID)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", extID, err)
	}

	customerID := sess.Customer.String()
	if customerID == "" {
		customerID = remote.CustomerID
	}
	sub := &domain.Subscription{
		ID:                     uuid.NewString(),
		UserID:                 userID,
		CustomerEmail:          sess.email(),
		CustomerName:           sess.name(),
		PlanID:                 plan.ID,
		PlanName:               plan.Name,
		Revenue:                plan.MonthlyPrice,
		ExternalSubscriptionID: extID,
		ExternalCustomerID:     customerID,
	}
	base := domain.SubscriptionState{}
	if existing != nil {
		base = existing.State()
		sub.StartedAt = existing.StartedAt
	}
	sub.Apply(base.Activate(remote.PeriodStart, remote.PeriodEnd))
	sub.StartedAt = firstTime(sub.StartedAt, remote.PeriodStart, ptrTime(s.now()))

	if err := s.subs.UpsertByExternalID(ctx, sub, checkoutColumns); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", extID, err)
	}
	s.loggerf("level=info msg=subscription activated subscription_id=%s external_id=%s plan_id=%s status=%s", sub.ID, extID, plan.ID, sub.Status)

	s.notify(ctx, "subscription_confirmed", func(ctx context.Context, n Notifier) error {
		return n.SubscriptionConfirmed(ctx, sub, plan)
	})
	return nil
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, ev Event) error {
	var obj subscriptionObject
	if err := ev.decode(&obj); err != nil {
		return err
	}
	start, end := obj.periods()

	existing, err := s.subs.GetByExternalID(ctx, obj.ID)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", obj.ID, err)
	}

	var sub *domain.Subscription
	if existing != nil {
		cp := *existing
		// The upsert keys on the external id; a fresh id keeps the insert
		// attempt from colliding on the primary key.
		cp.ID = uuid.NewString()
		sub = &cp
	} else {
		sub, err = s.subscriptionFromMetadata(ctx, obj)
		if err != nil || sub == nil {
			return err
		}
	}

	sub.Apply(sub.State().Activate(start, end))
	sub.StartedAt = firstTime(sub.StartedAt, unixPtr(obj.StartDate), start)

	if err := s.subs.UpsertByExternalID(ctx, sub, activationColumns); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", obj.ID, err)
	}
	s.loggerf("level=info msg=subscription created applied subscription_id=%s external_id=%s status=%s", sub.ID, obj.ID, sub.Status)
	return nil
}

// subscriptionFromMetadata builds a new row for a subscription whose checkout
// event has not arrived yet. It returns nil when the metadata cannot link
// the subscription to a plan and a user.
func (s *Service) subscriptionFromMetadata(ctx context.Context, obj subscriptionObject) (*domain.Subscription, error) {
	planID := obj.Metadata.get("plan_id")
	userID, uerr := strconv.ParseInt(obj.Metadata.get("user_id"), 10, 64)
	if planID == "" || uerr != nil {
		s.loggerf("level=info msg=subscription not known locally yet external_id=%s", obj.ID)
		return nil, nil
	}
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", planID, err)
	}
	if plan == nil {
		s.loggerf("level=warn msg=subscription plan not found plan_id=%s external_id=%s", planID, obj.ID)
		return nil, nil
	}
	return &domain.Subscription{
		ID:                     uuid.NewString(),
		UserID:                 userID,
		PlanID:                 plan.ID,
		PlanName:               plan.Name,
		Revenue:                plan.MonthlyPrice,
		ExternalSubscriptionID: obj.ID,
		ExternalCustomerID:     obj.Customer.String(),
	}, nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, ev Event) error {
	var obj subscriptionObject
	if err := ev.decode(&obj); err != nil {
		return err
	}
	sub, err := s.subs.GetByExternalID(ctx, obj.ID)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", obj.ID, err)
	}
	if sub == nil {
		s.loggerf("level=info msg=subscription update for unknown subscription external_id=%s", obj.ID)
		return nil
	}

	start, end := obj.periods()
	cancelledAt := s.now()
	if t := unixPtr(obj.CanceledAt); t != nil {
		cancelledAt = *t
	}
	next := sub.State().DeriveFromProcessor(obj.Status, obj.CancelAtPeriodEnd, start, end, cancelledAt)
	written, err := s.subs.UpdateState(ctx, sub.ID, next)
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}
	if !written {
		s.loggerf("level=info msg=subscription already cancelled, update skipped subscription_id=%s processor_status=%s", sub.ID, obj.Status)
		return nil
	}
	sub.Apply(next)
	s.loggerf("level=info msg=subscription updated subscription_id=%s processor_status=%s cancel_at_period_end=%t status=%s",
		sub.ID, obj.Status, obj.CancelAtPeriodEnd, sub.Status)

	s.notify(ctx, "subscription_updated", func(ctx context.Context, n Notifier) error {
		return n.SubscriptionUpdated(ctx, sub)
	})
	return nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, ev Event) error {
	var obj subscriptionObject
	if err := ev.decode(&obj); err != nil {
		return err
	}
	sub, err := s.subs.GetByExternalID(ctx, obj.ID)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", obj.ID, err)
	}
	if sub == nil {
		s.loggerf("level=info msg=subscription delete for unknown subscription external_id=%s", obj.ID)
		return nil
	}

	at := s.now()
	if t := unixPtr(obj.CanceledAt); t != nil {
		at = *t
	}
	if !sub.State().Terminal() {
		next := sub.State().Cancel(at)
		written, err := s.subs.UpdateState(ctx, sub.ID, next)
		if err != nil {
			return fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
		}
		if !written {
			// Cancelled by a concurrent event; continue with the stored row.
			if sub, err = s.subs.GetByID(ctx, sub.ID); err != nil {
				return fmt.Errorf("reload subscription %s: %w", obj.ID, err)
			}
			if sub == nil {
				return nil
			}
		} else {
			sub.Apply(next)
			s.loggerf("level=info msg=subscription cancelled subscription_id=%s external_id=%s", sub.ID, obj.ID)
		}
	}

	// An earlier updated(canceled) event may have reached the terminal state
	// without the customer being told; the notice is claimed once per row.
	claimed, err := s.subs.ClaimCancellationNotice(ctx, sub.ID, s.now())
	if err != nil {
		return fmt.Errorf("claim cancellation notice %s: %w", sub.ID, err)
	}
	if !claimed {
		s.loggerf("level=info msg=cancellation already notified subscription_id=%s", sub.ID)
		return nil
	}
	s.notify(ctx, "subscription_cancelled", func(ctx context.Context, n Notifier) error {
		return n.SubscriptionCancelled(ctx, sub)
	})
	return nil
}

func firstTime(candidates ...*time.Time) *time.Time {
	for _, t := range candidates {
		if t != nil {
			return t
		}
	}
	return nil
}

func ptrTime(t time.Time) *time.Time { return &t }
