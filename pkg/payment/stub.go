package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// StubGateway issues local checkout ids and signs its own events. It backs
// development setups and tests; nothing is charged.
type StubGateway struct {
	Signer Signer
}

func NewStubGateway(webhookSecret string) *StubGateway {
	return &StubGateway{Signer: Signer{Secret: webhookSecret}}
}

func (g *StubGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if !req.Amount.IsPositive() {
		return nil, errors.New("stub gateway: amount must be positive")
	}
	id := "cs_stub_" + uuid.NewString()
	return &CheckoutSession{
		ID:              id,
		PaymentIntentID: "pi_stub_" + uuid.NewString(),
		URL:             req.SuccessURL,
	}, nil
}

func (g *StubGateway) VerifyAndParseWebhook(payload []byte, signature string) (*Event, error) {
	if err := g.Signer.Verify(payload, signature); err != nil {
		return nil, err
	}
	return ParseEvent(payload)
}

// CompletedEvent builds a signed checkout.session.completed delivery for a
// checkout created by this gateway.
func (g *StubGateway) CompletedEvent(eventID string, cs *CheckoutSession, req CheckoutRequest) (payload []byte, signature string) {
	return g.SignedEvent(eventID, EventCheckoutCompleted, map[string]interface{}{
		"id":             cs.ID,
		"object":         "checkout.session",
		"payment_intent": cs.PaymentIntentID,
		"amount_total":   ToMinorUnits(req.Amount),
		"currency":       req.Currency,
		"metadata":       req.Metadata,
	})
}

// SignedEvent wraps object in an event envelope and signs it.
func (g *StubGateway) SignedEvent(eventID, eventType string, object map[string]interface{}) ([]byte, string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"id":      eventID,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]interface{}{"object": object},
	})
	return payload, g.Signer.Sign(payload)
}
