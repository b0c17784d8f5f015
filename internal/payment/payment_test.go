package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test"

func testGateway(t *testing.T, h http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripe(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Currency:      "eur",
		ReturnURL:     "http://localhost:3000",
		Backends:      &stripe.Backends{API: backend, Connect: backend, Uploads: backend},
	})
}

func signed(t *testing.T, v interface{}) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return payload, sp.Header
}

func TestCommission(t *testing.T) {
	assert.Equal(t, 3.0, Commission(20, 0.15))
	assert.Equal(t, 1.5, Commission(10, 0.15))
	assert.Equal(t, 0.0, Commission(10, 0))
	assert.EqualValues(t, 499, Cents(4.99))
}

func TestCreateCheckoutSession(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "buyer@example.com", r.PostForm.Get("customer_email"))
		assert.Equal(t, "499", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "eur", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "app-1", r.PostForm.Get("metadata[app_id]"))
		assert.Equal(t, "user-1", r.PostForm.Get("metadata[user_id]"))
		assert.Equal(t, "http://localhost:3000/success?session_id={CHECKOUT_SESSION_ID}", r.PostForm.Get("success_url"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.example/cs_test_1"}`))
	})

	s, err := g.CreateCheckoutSession(context.Background(), CheckoutRequest{
		AppID: "app-1", AppName: "Game", Description: "Application APK",
		UserID: "user-1", CustomerEmail: "buyer@example.com", Amount: 4.99,
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, "https://checkout.example/cs_test_1", s.URL)
}

func TestRefund(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "250", r.PostForm.Get("amount"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund"}`))
	})
	id, err := g.Refund(context.Background(), "pi_1", 2.5)
	require.NoError(t, err)
	assert.Equal(t, "re_1", id)
}

func TestParseWebhookCompleted(t *testing.T) {
	g := NewStripe(StripeConfig{WebhookSecret: testWebhookSecret})
	payload, header := signed(t, map[string]interface{}{
		"id":     "evt_1",
		"object": "event",
		"type":   "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             "cs_test_1",
				"object":         "checkout.session",
				"payment_intent": "pi_123",
				"amount_total":   499,
				"metadata":       map[string]string{"app_id": "app-1"},
			},
		},
	})

	ev, err := g.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, ev.Type)
	assert.Equal(t, "cs_test_1", ev.SessionID)
	assert.Equal(t, "pi_123", ev.PaymentIntentID)
	assert.EqualValues(t, 499, ev.AmountTotal)
	assert.Equal(t, "app-1", ev.Metadata["app_id"])
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	g := NewStripe(StripeConfig{WebhookSecret: testWebhookSecret})
	payload, _ := signed(t, map[string]interface{}{"id": "evt_1", "object": "event", "type": "checkout.session.expired"})

	_, err := g.ParseWebhook(payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	other := NewStripe(StripeConfig{WebhookSecret: "whsec_other"})
	_, header := signed(t, map[string]interface{}{"id": "evt_1"})
	_, err = other.ParseWebhook(payload, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
