package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	ErrMalformedEvent   = errors.New("payment: malformed webhook event")
)

// Event types the settlement flow reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventChargeRefunded    = "charge.refunded"
)

type CheckoutRequest struct {
	SessionID      uint
	Amount         decimal.Decimal
	Currency       string
	Description    string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

type CheckoutSession struct {
	ID              string // gateway checkout session id
	PaymentIntentID string
	URL             string // redirect for the payer
}

// Gateway is a hosted-checkout payment provider.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// VerifyAndParseWebhook authenticates a raw webhook body and decodes it.
	VerifyAndParseWebhook(payload []byte, signature string) (*Event, error)
}

// ToMinorUnits converts a 2dp amount into cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
