package payment

import (
	"context"
	"fmt"

	"cleanhub/internal/domain"
)

func (s *Service) handleInvoicePaid(ctx context.Context, ev Event) error {
	return s.applyInvoice(ctx, ev, func(st domain.SubscriptionState, inv invoiceObject) domain.SubscriptionState {
		return st.InvoicePaid(inv.periodEnd())
	})
}

func (s *Service) handleInvoiceFailed(ctx context.Context, ev Event) error {
	return s.applyInvoice(ctx, ev, func(st domain.SubscriptionState, _ invoiceObject) domain.SubscriptionState {
		return st.InvoiceFailed()
	})
}

// applyInvoice resolves the subscription named in the invoice's own
// metadata and persists the transition. The id is never inferred from other
// invoice fields.
func (s *Service) applyInvoice(ctx context.Context, ev Event, transition func(domain.SubscriptionState, invoiceObject) domain.SubscriptionState) error {
	var inv invoiceObject
	if err := ev.decode(&inv); err != nil {
		return err
	}
	id := inv.Metadata.get("subscription_id")
	if id == "" {
		s.loggerf("level=warn msg=invoice without subscription_id metadata invoice_id=%s type=%s", inv.ID, ev.Type)
		return nil
	}

	sub, err := s.subs.GetByExternalID(ctx, id)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", id, err)
	}
	if sub == nil {
		if sub, err = s.subs.GetByID(ctx, id); err != nil {
			return fmt.Errorf("load subscription %s: %w", id, err)
		}
	}
	if sub == nil {
		s.loggerf("level=info msg=invoice for unknown subscription subscription_id=%s invoice_id=%s", id, inv.ID)
		return nil
	}

	next := transition(sub.State(), inv)
	written, err := s.subs.UpdateState(ctx, sub.ID, next)
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}
	if !written {
		s.loggerf("level=info msg=invoice for cancelled subscription ignored subscription_id=%s invoice_id=%s type=%s", sub.ID, inv.ID, ev.Type)
		return nil
	}
	s.loggerf("level=info msg=invoice applied subscription_id=%s invoice_id=%s type=%s status=%s", sub.ID, inv.ID, ev.Type, next.Status)
	return nil
}
