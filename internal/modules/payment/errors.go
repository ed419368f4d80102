package payment

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedEvent   = errors.New("malformed event payload")
	ErrPriceMismatch    = errors.New("price mismatch")
	ErrInFlight         = errors.New("event is being processed")
	ErrEventNotFound    = errors.New("webhook event not found")
	ErrNoProcessor      = errors.New("payment processor client is not configured")
)

// permanent reports whether err can never succeed on redelivery. Such
// events are acknowledged and kept in the ledger with their error.
func permanent(err error) bool {
	return errors.Is(err, ErrMalformedEvent) || errors.Is(err, ErrPriceMismatch)
}
