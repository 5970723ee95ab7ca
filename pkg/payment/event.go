package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Event is a verified gateway notification reduced to what settlement needs.
type Event struct {
	ID               string
	Type             string
	GatewaySessionID string
	PaymentIntentID  string
	Amount           decimal.Decimal
	Currency         string
	Metadata         map[string]string
	Raw              json.RawMessage
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			Object        string            `json:"object"`
			PaymentIntent string            `json:"payment_intent"`
			AmountTotal   int64             `json:"amount_total"`
			Amount        int64             `json:"amount"`
			Currency      string            `json:"currency"`
			Metadata      map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes an already verified payload. Refund and failure events
// reference the payment intent; the checkout session id travels in metadata.
func ParseEvent(payload []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	obj := env.Data.Object
	ev := &Event{
		ID:              env.ID,
		Type:            env.Type,
		PaymentIntentID: obj.PaymentIntent,
		Currency:        strings.ToUpper(obj.Currency),
		Metadata:        obj.Metadata,
		Raw:             json.RawMessage(payload),
	}
	minor := obj.AmountTotal
	if minor == 0 {
		minor = obj.Amount
	}
	ev.Amount = FromMinorUnits(minor)
	switch {
	case strings.HasPrefix(env.Type, "checkout.session."):
		ev.GatewaySessionID = obj.ID
	default:
		if obj.PaymentIntent == "" && strings.HasPrefix(obj.ID, "pi_") {
			ev.PaymentIntentID = obj.ID
		}
		ev.GatewaySessionID = obj.Metadata["checkout_session_id"]
	}
	return ev, nil
}
