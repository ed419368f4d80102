package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event is a verified processor event. Object holds data.object verbatim.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Object  json.RawMessage
	Payload []byte
}

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes the processor's event envelope. It does not check the
// signature.
func ParseEvent(payload []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.ID == "" || env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	return Event{
		ID:      env.ID,
		Type:    env.Type,
		Created: time.Unix(env.Created, 0).UTC(),
		Object:  env.Data.Object,
		Payload: payload,
	}, nil
}

func (e Event) decode(v interface{}) error {
	if len(e.Object) == 0 {
		return fmt.Errorf("%w: %s has no data.object", ErrMalformedEvent, e.Type)
	}
	if err := json.Unmarshal(e.Object, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedEvent, e.Type, err)
	}
	return nil
}

// expandableID accepts either an id string or an expanded object with an id.
type expandableID string

func (x *expandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*x = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*x = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*x = expandableID(obj.ID)
	return nil
}

func (x expandableID) String() string { return string(x) }

type metadata map[string]string

func (m metadata) get(key string) string {
	return strings.TrimSpace(m[key])
}

type checkoutSession struct {
	ID                string       `json:"id"`
	Mode              string       `json:"mode"`
	ClientReferenceID string       `json:"client_reference_id"`
	Customer          expandableID `json:"customer"`
	Subscription      expandableID `json:"subscription"`
	PaymentIntent     expandableID `json:"payment_intent"`
	PaymentStatus     string       `json:"payment_status"`
	AmountTotal       *int64       `json:"amount_total"`
	Currency          string       `json:"currency"`
	CustomerEmail     string       `json:"customer_email"`
	CustomerDetails   *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
	Metadata metadata `json:"metadata"`
}

const (
	checkoutKindBooking      = "booking"
	checkoutKindSubscription = "subscription"
	checkoutKindUpgrade      = "plan_upgrade"
)

// kind picks the flow a completed checkout belongs to.
func (s checkoutSession) kind() string {
	if s.Metadata.get("kind") == checkoutKindUpgrade {
		return checkoutKindUpgrade
	}
	if s.Mode == "subscription" {
		return checkoutKindSubscription
	}
	return checkoutKindBooking
}

func (s checkoutSession) referenceID() string {
	if ref := strings.TrimSpace(s.ClientReferenceID); ref != "" {
		return ref
	}
	return s.Metadata.get("reference_id")
}

func (s checkoutSession) email() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

func (s checkoutSession) name() string {
	if s.CustomerDetails != nil {
		return s.CustomerDetails.Name
	}
	return ""
}

// amount converts amount_total from minor units; ok is false when absent.
func (s checkoutSession) amount() (decimal.Decimal, bool) {
	if s.AmountTotal == nil {
		return decimal.Zero, false
	}
	return decimal.New(*s.AmountTotal, -2), true
}

type subscriptionItem struct {
	ID                 string `json:"id"`
	CurrentPeriodStart *int64 `json:"current_period_start"`
	CurrentPeriodEnd   *int64 `json:"current_period_end"`
}

type subscriptionObject struct {
	ID                 string       `json:"id"`
	Customer           expandableID `json:"customer"`
	Status             string       `json:"status"`
	CancelAtPeriodEnd  bool         `json:"cancel_at_period_end"`
	CanceledAt         *int64       `json:"canceled_at"`
	StartDate          *int64       `json:"start_date"`
	CurrentPeriodStart *int64       `json:"current_period_start"`
	CurrentPeriodEnd   *int64       `json:"current_period_end"`
	Items              struct {
		Data []subscriptionItem `json:"data"`
	} `json:"items"`
	Metadata metadata `json:"metadata"`
}

// periods reads the billing period from the subscription, falling back to
// its first item where newer API versions keep it.
func (s subscriptionObject) periods() (start, end *time.Time) {
	start, end = unixPtr(s.CurrentPeriodStart), unixPtr(s.CurrentPeriodEnd)
	if len(s.Items.Data) > 0 {
		if start == nil {
			start = unixPtr(s.Items.Data[0].CurrentPeriodStart)
		}
		if end == nil {
			end = unixPtr(s.Items.Data[0].CurrentPeriodEnd)
		}
	}
	return start, end
}

type invoiceObject struct {
	ID            string       `json:"id"`
	Customer      expandableID `json:"customer"`
	Subscription  expandableID `json:"subscription"`
	CustomerEmail string       `json:"customer_email"`
	AmountPaid    int64        `json:"amount_paid"`
	PeriodEnd     *int64       `json:"period_end"`
	Lines         struct {
		Data []struct {
			Period struct {
				End *int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
	Metadata metadata `json:"metadata"`
}

// periodEnd prefers the subscription line's period, which is the period the
// invoice pays for.
func (i invoiceObject) periodEnd() *time.Time {
	for _, line := range i.Lines.Data {
		if t := unixPtr(line.Period.End); t != nil {
			return t
		}
	}
	return unixPtr(i.PeriodEnd)
}

func unixPtr(v *int64) *time.Time {
	if v == nil || *v == 0 {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}
