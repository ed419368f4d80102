package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"cleanhub/internal/domain"
)

// applyPlanUpgrade finishes a plan upgrade whose price difference was
// captured by a one-off checkout: the processor subscription moves to a new
// recurring price without proration, then the local row follows. Nothing
// local is written until every processor call has succeeded.
func (s *Service) applyPlanUpgrade(ctx context.Context, sess checkoutSession) error {
	subID := sess.Metadata.get("subscription_id")
	planID := sess.Metadata.get("plan_id")
	if subID == "" || planID == "" {
		s.loggerf("level=warn msg=plan upgrade missing metadata session_id=%s subscription_id=%s plan_id=%s", sess.ID, subID, planID)
		return nil
	}

	sub, err := s.subs.GetByID(ctx, subID)
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", subID, err)
	}
	if sub == nil {
		s.loggerf("level=warn msg=plan upgrade for unknown subscription subscription_id=%s session_id=%s", subID, sess.ID)
		return nil
	}
	if sub.LastUpgradeSessionID == sess.ID {
		s.loggerf("level=info msg=plan upgrade already applied subscription_id=%s session_id=%s", subID, sess.ID)
		return nil
	}
	if sub.State().Terminal() || sub.ExternalSubscriptionID == "" {
		s.loggerf("level=warn msg=plan upgrade for inactive subscription subscription_id=%s status=%s", subID, sub.Status)
		s.alertAdmin(ctx, "Upgrade paid on inactive subscription",
			fmt.Sprintf("Session %s paid an upgrade to %s for subscription %s in status %s.", sess.ID, planID, subID, sub.Status))
		return nil
	}

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("load plan %s: %w", planID, err)
	}
	if plan == nil {
		s.loggerf("level=warn msg=plan upgrade target not found plan_id=%s session_id=%s", planID, sess.ID)
		return nil
	}

	if claimed := sess.Metadata.get("new_price"); claimed != "" {
		price, perr := decimal.NewFromString(claimed)
		if perr != nil || !price.Equal(plan.MonthlyPrice) {
			s.alertAdmin(ctx, "Plan upgrade price mismatch",
				fmt.Sprintf("Session %s claimed %q for plan %s, catalog price is %s. Subscription %s was not changed.",
					sess.ID, claimed, plan.ID, plan.MonthlyPrice.StringFixed(2), sub.ID))
			return fmt.Errorf("%w: session %s claimed %q, plan %s costs %s", ErrPriceMismatch, sess.ID, claimed, plan.ID, plan.MonthlyPrice.StringFixed(2))
		}
	}

	productID, err := s.processor.FindProductByPlan(ctx, plan.ID)
	if err != nil {
		return fmt.Errorf("find product for plan %s: %w", plan.ID, err)
	}
	if productID == "" {
		productID, err = s.processor.CreateProduct(ctx, plan.ID, plan.Name)
		if err != nil {
			return fmt.Errorf("create product for plan %s: %w", plan.ID, err)
		}
		s.loggerf("level=info msg=processor product created plan_id=%s product_id=%s", plan.ID, productID)
	}

	priceID, err := s.processor.CreateMonthlyPrice(ctx, productID, plan.MonthlyPrice)
	if err != nil {
		return fmt.Errorf("create price for product %s: %w", productID, err)
	}

	remote, err := s.processor.SwapPrice(ctx, sub.ExternalSubscriptionID, priceID)
	if err != nil {
		return fmt.Errorf("swap price on %s: %w", sub.ExternalSubscriptionID, err)
	}

	change := domain.PlanChange{
		PlanID:           plan.ID,
		PlanName:         plan.Name,
		Revenue:          plan.MonthlyPrice,
		CurrentPeriodEnd: remote.PeriodEnd,
		SessionID:        sess.ID,
	}
	if err := s.subs.ApplyPlanChange(ctx, sub.ID, change); err != nil {
		return fmt.Errorf("apply plan change to %s: %w", sub.ID, err)
	}
	sub.PlanID, sub.PlanName, sub.Revenue = plan.ID, plan.Name, plan.MonthlyPrice
	sub.LastUpgradeSessionID = sess.ID
	if remote.PeriodEnd != nil {
		sub.CurrentPeriodEnd = remote.PeriodEnd
	}
	s.loggerf("level=info msg=plan upgraded subscription_id=%s plan_id=%s price_id=%s revenue=%s", sub.ID, plan.ID, priceID, plan.MonthlyPrice.StringFixed(2))

	s.notify(ctx, "subscription_upgraded", func(ctx context.Context, n Notifier) error {
		return n.SubscriptionUpgraded(ctx, sub, plan)
	})
	return nil
}
