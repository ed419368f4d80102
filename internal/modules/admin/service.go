package admin

import (
	"context"
	"errors"
	"fmt"

	"cleanhub/internal/domain"
	"cleanhub/internal/modules/payment"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type Service struct {
	events   WebhookEventRepository
	subs     SubscriptionRepository
	replayer Replayer
}

func NewService(events WebhookEventRepository, subs SubscriptionRepository, replayer Replayer) *Service {
	return &Service{events: events, subs: subs, replayer: replayer}
}

func (s *Service) ListWebhookEvents(ctx context.Context, failedOnly bool, limit int) ([]WebhookEventView, error) {
	rows, err := s.events.List(ctx, failedOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	out := make([]WebhookEventView, 0, len(rows))
	for _, r := range rows {
		out = append(out, toWebhookEventView(r))
	}
	return out, nil
}

// ReplayWebhookEvent re-dispatches a stored event. The signature was checked
// when the event was first received.
func (s *Service) ReplayWebhookEvent(ctx context.Context, id int64) (payment.Result, error) {
	return s.replayer.Replay(ctx, id)
}

func (s *Service) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}
