package payment

import "context"

// Processor event types the reconciler acts on.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventSubscriptionCreated    = "customer.subscription.created"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
	EventInvoicePaymentPassed   = "invoice.payment_succeeded"
	EventInvoicePaymentFailed   = "invoice.payment_failed"
)

type HandlerFunc func(ctx context.Context, ev Event) error

// Router maps an event type to exactly one handler.
type Router struct {
	handlers map[string]HandlerFunc
}

func NewRouter() *Router {
	return &Router{handlers: map[string]HandlerFunc{}}
}

func (r *Router) Handle(eventType string, h HandlerFunc) {
	r.handlers[eventType] = h
}

// Route returns false for types without a handler; callers acknowledge
// those and do nothing.
func (r *Router) Route(eventType string) (HandlerFunc, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}

func (r *Router) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
