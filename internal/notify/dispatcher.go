package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cleanhub/internal/domain"
	"cleanhub/internal/modules/payment"
)

// Broadcaster pushes staff alerts to live dashboards.
type Broadcaster interface {
	Broadcast(alert Alert) int
}

type DispatcherConfig struct {
	AdminEmail string
	Timeout    time.Duration
}

// Dispatcher renders customer and staff emails for reconciled payments.
// Every send is bounded by the configured timeout.
type Dispatcher struct {
	sender    Sender
	templates *Templates
	feed      Broadcaster
	cfg       DispatcherConfig
	loggerf   func(format string, args ...interface{})
	now       func() time.Time
}

func NewDispatcher(sender Sender, templates *Templates, feed Broadcaster, cfg DispatcherConfig, loggerf func(format string, args ...interface{})) *Dispatcher {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		sender:    sender,
		templates: templates,
		feed:      feed,
		cfg:       cfg,
		loggerf:   loggerf,
		now:       time.Now,
	}
}

func (d *Dispatcher) BookingConfirmed(ctx context.Context, b *domain.Booking) error {
	data := map[string]interface{}{"Booking": b}
	return errors.Join(
		d.send(ctx, TplBookingConfirmed, b.CustomerEmail, data),
		d.staff(ctx, TplBookingConfirmedStaff, data),
	)
}

func (d *Dispatcher) SubscriptionConfirmed(ctx context.Context, s *domain.Subscription, plan *domain.SubscriptionPlan) error {
	data := map[string]interface{}{"Subscription": s, "Plan": plan}
	return errors.Join(
		d.send(ctx, TplSubscriptionConfirmed, s.CustomerEmail, data),
		d.staff(ctx, TplSubscriptionConfirmedStaff, data),
	)
}

func (d *Dispatcher) SubscriptionUpdated(ctx context.Context, s *domain.Subscription) error {
	return d.staff(ctx, TplSubscriptionUpdatedStaff, map[string]interface{}{"Subscription": s})
}

func (d *Dispatcher) SubscriptionCancelled(ctx context.Context, s *domain.Subscription) error {
	data := map[string]interface{}{"Subscription": s}
	return errors.Join(
		d.send(ctx, TplSubscriptionCancelled, s.CustomerEmail, data),
		d.staff(ctx, TplSubscriptionCancelledStaff, data),
	)
}

func (d *Dispatcher) SubscriptionUpgraded(ctx context.Context, s *domain.Subscription, plan *domain.SubscriptionPlan) error {
	data := map[string]interface{}{"Subscription": s, "Plan": plan}
	return errors.Join(
		d.send(ctx, TplSubscriptionUpgraded, s.CustomerEmail, data),
		d.staff(ctx, TplSubscriptionUpgradedStaff, data),
	)
}

func (d *Dispatcher) AdminAlert(ctx context.Context, subject, body string) error {
	return d.staff(ctx, TplAdminAlert, map[string]interface{}{"Subject": subject, "Body": body})
}

// staff emails the admin address and mirrors the subject to the live feed.
func (d *Dispatcher) staff(ctx context.Context, name string, data interface{}) error {
	subject, body, err := d.templates.Render(name, data)
	if err != nil {
		return err
	}
	if d.feed != nil {
		n := d.feed.Broadcast(Alert{Type: name, Subject: subject, Body: body, At: d.now().UTC()})
		if n > 0 {
			d.loggerf("level=info msg=staff alert broadcast kind=%s listeners=%d", name, n)
		}
	}
	if d.cfg.AdminEmail == "" {
		return nil
	}
	return d.deliver(ctx, Message{Kind: name, To: []string{d.cfg.AdminEmail}, Subject: subject, Body: body})
}

func (d *Dispatcher) send(ctx context.Context, name, to string, data interface{}) error {
	if to == "" {
		d.loggerf("level=warn msg=email skipped kind=%s reason=no_recipient", name)
		return nil
	}
	subject, body, err := d.templates.Render(name, data)
	if err != nil {
		return err
	}
	return d.deliver(ctx, Message{Kind: name, To: []string{to}, Subject: subject, Body: body})
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	msg.CreatedAt = d.now().UTC()
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	return nil
}

var _ payment.Notifier = (*Dispatcher)(nil)
