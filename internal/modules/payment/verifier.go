package payment

import (
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureHeader carries the processor's payload signature.
const SignatureHeader = "Stripe-Signature"

type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: strings.TrimSpace(secret)}
}

// Verify checks header against the raw payload and decodes the event. The
// returned error wraps ErrInvalidSignature with the reason, which is meant
// for server logs only.
func (v *Verifier) Verify(payload []byte, header string) (Event, error) {
	if v.secret == "" {
		return Event{}, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	if strings.TrimSpace(header) == "" {
		return Event{}, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}
	if _, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ParseEvent(payload)
}
