package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HostedCheckoutGateway talks to a Stripe-style checkout API over HTTP.
type HostedCheckoutGateway struct {
	BaseURL string
	APIKey  string
	Signer  Signer
	client  *http.Client
}

func NewHostedCheckoutGateway(baseURL, apiKey, webhookSecret string, tolerance time.Duration) *HostedCheckoutGateway {
	return &HostedCheckoutGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Signer:  Signer{Secret: webhookSecret, Tolerance: tolerance},
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type checkoutLineItem struct {
	Name        string `json:"name"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Quantity    int    `json:"quantity"`
}

type checkoutCreateReq struct {
	Mode       string             `json:"mode"`
	SuccessURL string             `json:"success_url"`
	CancelURL  string             `json:"cancel_url"`
	LineItems  []checkoutLineItem `json:"line_items"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

type checkoutCreateResp struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentIntent string `json:"payment_intent"`
	Error         *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *HostedCheckoutGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	body, _ := json.Marshal(checkoutCreateReq{
		Mode:       "payment",
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		LineItems: []checkoutLineItem{{
			Name:        req.Description,
			AmountMinor: ToMinorUnits(req.Amount),
			Currency:    strings.ToLower(req.Currency),
			Quantity:    1,
		}},
		Metadata: req.Metadata,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("checkout request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out checkoutCreateResp
	_ = json.Unmarshal(respBody, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, fmt.Errorf("checkout create failed: %d %s", resp.StatusCode, msg)
	}
	if out.ID == "" || out.URL == "" {
		return nil, fmt.Errorf("checkout create: empty session in response")
	}
	return &CheckoutSession{ID: out.ID, PaymentIntentID: out.PaymentIntent, URL: out.URL}, nil
}

func (g *HostedCheckoutGateway) VerifyAndParseWebhook(payload []byte, signature string) (*Event, error) {
	if err := g.Signer.Verify(payload, signature); err != nil {
		return nil, err
	}
	return ParseEvent(payload)
}
