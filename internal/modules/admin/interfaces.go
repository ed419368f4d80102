package admin

import (
	"context"

	"cleanhub/internal/domain"
	"cleanhub/internal/modules/payment"
	"cleanhub/internal/notify"

	"github.com/gorilla/websocket"
)

type WebhookEventRepository interface {
	List(ctx context.Context, failedOnly bool, limit int) ([]domain.WebhookEvent, error)
}

type SubscriptionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
}

// Replayer re-runs a stored webhook through the reconciler.
type Replayer interface {
	Replay(ctx context.Context, ledgerID int64) (payment.Result, error)
}

// FeedHub is the live staff-alert feed.
type FeedHub interface {
	Register(userID int64, conn *websocket.Conn)
	Unregister(conn *websocket.Conn)
}

var (
	_ Replayer = (*payment.Service)(nil)
	_ FeedHub  = (*notify.Hub)(nil)
)
