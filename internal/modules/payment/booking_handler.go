package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"cleanhub/internal/domain"
	"cleanhub/internal/pkg/validator"
)

func (s *Service) handleCheckoutCompleted(ctx context.Context, ev Event) error {
	var sess checkoutSession
	if err := ev.decode(&sess); err != nil {
		return err
	}
	switch sess.kind() {
	case checkoutKindUpgrade:
		return s.applyPlanUpgrade(ctx, sess)
	case checkoutKindSubscription:
		return s.activateFromCheckout(ctx, sess)
	default:
		return s.confirmBooking(ctx, sess)
	}
}

// confirmBooking turns the session's draft into a paid, confirmed booking.
func (s *Service) confirmBooking(ctx context.Context, sess checkoutSession) error {
	ref := sess.referenceID()
	if ref == "" {
		s.loggerf("level=warn msg=checkout session without reference id session_id=%s", sess.ID)
		return nil
	}
	if sess.PaymentStatus == "unpaid" {
		// Delayed payment methods complete later with an async success event.
		s.loggerf("level=info msg=checkout not paid yet session_id=%s reference_id=%s", sess.ID, ref)
		return nil
	}

	draft, err := s.drafts.GetByReferenceID(ctx, ref)
	if err != nil {
		return fmt.Errorf("load draft %s: %w", ref, err)
	}
	if draft == nil {
		s.loggerf("level=info msg=booking draft not found reference_id=%s session_id=%s", ref, sess.ID)
		return nil
	}

	in, err := draft.Decode()
	if err != nil {
		s.alertAdmin(ctx, "Unreadable booking draft", fmt.Sprintf("Draft %s for paid session %s could not be decoded: %v", ref, sess.ID, err))
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if errs := validator.Validate(in); errs != nil {
		s.alertAdmin(ctx, "Invalid booking draft", fmt.Sprintf("Draft %s for paid session %s failed validation: %v", ref, sess.ID, errs))
		return fmt.Errorf("%w: draft %s invalid: %v", ErrMalformedEvent, ref, errs)
	}
	date, err := in.ScheduledDate()
	if err != nil {
		return fmt.Errorf("%w: draft %s date %q: %v", ErrMalformedEvent, ref, in.Date, err)
	}

	lines, linesTotal, err := s.resolveLines(ctx, ref, in.Services)
	if err != nil {
		return err
	}

	total := in.Price
	if paid, ok := sess.amount(); ok {
		total = paid
	}
	if len(lines) > 0 && !linesTotal.Equal(total) {
		s.loggerf("level=warn msg=booking total differs from catalog reference_id=%s charged=%s catalog=%s", ref, total.StringFixed(2), linesTotal.StringFixed(2))
	}

	b := &domain.Booking{
		ReferenceID:       ref,
		UserID:            in.UserID,
		CustomerName:      in.Customer.Name,
		CustomerEmail:     in.Customer.Email,
		CustomerPhone:     in.Customer.Phone,
		AddressLine1:      in.Address.Line1,
		AddressLine2:      in.Address.Line2,
		City:              in.Address.City,
		PostalCode:        in.Address.PostalCode,
		Date:              date,
		TimeStart:         in.TimeWindow.Start,
		TimeEnd:           in.TimeWindow.End,
		Frequency:         in.Frequency,
		TotalPrice:        total,
		Notes:             in.Notes,
		Status:            domain.BookingConfirmed,
		PaymentStatus:     domain.PaymentPaid,
		CheckoutSessionID: sess.ID,
		PaymentIntentID:   sess.PaymentIntent.String(),
		Lines:             lines,
	}

	if err := s.bookings.CreateFromDraft(ctx, ref, b); err != nil {
		if errors.Is(err, domain.ErrDraftConsumed) {
			s.loggerf("level=info msg=booking already created reference_id=%s session_id=%s", ref, sess.ID)
			return nil
		}
		return fmt.Errorf("create booking %s: %w", ref, err)
	}
	s.loggerf("level=info msg=booking confirmed booking_id=%d reference_id=%s lines=%d total=%s", b.ID, ref, len(b.Lines), b.TotalPrice.StringFixed(2))

	s.notify(ctx, "booking_confirmed", func(ctx context.Context, n Notifier) error {
		return n.BookingConfirmed(ctx, b)
	})
	return nil
}

// resolveLines prices every selection from the current catalog. Selections
// that no longer resolve are skipped.
func (s *Service) resolveLines(ctx context.Context, ref string, selected []domain.DraftService) ([]domain.BookingServiceLine, decimal.Decimal, error) {
	lines := make([]domain.BookingServiceLine, 0, len(selected))
	total := decimal.Zero
	for _, sel := range selected {
		item, err := s.catalog.Resolve(ctx, sel.ServiceID, sel.VariableID)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("resolve service=%d variable=%d: %w", sel.ServiceID, sel.VariableID, err)
		}
		if item == nil {
			s.loggerf("level=warn msg=catalog item missing, line skipped reference_id=%s service_id=%d variable_id=%d", ref, sel.ServiceID, sel.VariableID)
			continue
		}
		qty := sel.Quantity
		if qty <= 0 {
			qty = 1
		}
		price := item.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
		lines = append(lines, domain.BookingServiceLine{
			ServiceID:    item.ServiceID,
			VariableID:   item.VariableID,
			ServiceName:  item.ServiceName,
			VariableName: item.VariableName,
			Quantity:     qty,
			UnitPrice:    item.UnitPrice,
			LinePrice:    price,
		})
		total = total.Add(price)
	}
	return lines, total, nil
}
