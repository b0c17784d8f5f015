// Package payment adapts the hosted checkout provider: session creation,
// webhook verification and refunds.
package payment

import (
	"context"
	"errors"
	"math"
)

// Webhook event types the checkout flow reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type CheckoutRequest struct {
	AppID         string
	AppName       string
	Description   string
	IconURL       string
	UserID        string
	CustomerEmail string
	Amount        float64
}

type Session struct {
	ID  string
	URL string
}

// Event is the verified subset of a provider webhook the handlers need.
type Event struct {
	ID              string
	Type            string
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64
	Metadata        map[string]string
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
	// Refund returns the provider refund id. amount <= 0 refunds in full.
	Refund(ctx context.Context, paymentIntentID string, amount float64) (string, error)
}

// Commission is the platform cut of amount, rounded to cents.
func Commission(amount, rate float64) float64 {
	return math.Round(amount*rate*100) / 100
}

// Cents converts a decimal price to the provider's minor unit.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
