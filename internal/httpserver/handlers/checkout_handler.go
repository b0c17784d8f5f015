package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"nexusstore/internal/apperr"
	"nexusstore/internal/auth"
	"nexusstore/internal/models"
	"nexusstore/internal/payment"
	"nexusstore/internal/util"
)

// WebhookMaxBytes caps provider webhook bodies.
const WebhookMaxBytes = 64 << 10

type checkoutReq struct {
	AppID string `json:"appId"`
}

type checkoutResp struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func approvedApp(db *gorm.DB, id string) (*models.App, error) {
	if !util.IsUUID(id) {
		return nil, apperr.NotFound("app not found")
	}
	var app models.App
	err := db.First(&app, "id = ? AND status = ?", id, models.AppApproved).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("app not found")
	}
	return &app, err
}

// CreateCheckout opens a hosted checkout session and records the pending
// purchase before the session URL is handed to the client, so the webhook
// always finds a row to settle.
func CreateCheckout(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := auth.FromContext(r.Context())
		var req checkoutReq
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		db, cancel := d.db(r)
		defer cancel()
		app, err := approvedApp(db, strings.TrimSpace(req.AppID))
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if app.IsFree() {
			d.Resp.Error(w, r, apperr.Validation("this app is free"))
			return
		}
		owns, err := hasCompletedPurchase(db, u.ID, app.ID)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if owns {
			d.Resp.Error(w, r, apperr.Validation("you have already purchased this app"))
			return
		}

		desc := app.ShortDescription
		if desc == "" {
			desc = "Application " + strings.ToUpper(string(app.Type))
		}
		var icon string
		if app.Icon != "" {
			icon = d.Cfg.APIURL + "/" + strings.TrimPrefix(app.Icon, "/")
		}
		session, err := d.Payments.CreateCheckoutSession(r.Context(), payment.CheckoutRequest{
			AppID:         app.ID,
			AppName:       app.Name,
			Description:   desc,
			IconURL:       icon,
			UserID:        u.ID,
			CustomerEmail: u.Email,
			Amount:        app.Price,
		})
		if err != nil {
			d.Resp.Error(w, r, apperr.Wrap(apperr.KindInternal, "payment provider error", err))
			return
		}

		purchase := models.Purchase{
			UserID:          u.ID,
			AppID:           app.ID,
			Amount:          app.Price,
			Commission:      payment.Commission(app.Price, d.Cfg.CommissionRate),
			Status:          models.PurchasePending,
			StripeSessionID: session.ID,
		}
		store, done := d.db(r)
		defer done()
		if err := store.Create(&purchase).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if d.Metrics != nil {
			d.Metrics.CheckoutCreated()
		}
		d.Log.Infow("checkout session created", "purchase_id", purchase.ID, "session_id", session.ID, "app_id", app.ID)
		d.Resp.OK(w, checkoutResp{SessionID: session.ID, URL: session.URL})
	}
}

// Webhook verifies the provider signature over the raw body and settles the
// purchase keyed by the session id. Settling never moves a purchase
// backwards, so redelivered or out-of-order events are harmless.
func Webhook(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			d.Resp.Error(w, r, apperr.Validation("missing signature"))
			return
		}
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, WebhookMaxBytes))
		if err != nil {
			d.Resp.Error(w, r, apperr.Wrap(apperr.KindValidation, "invalid webhook body", err))
			return
		}
		ev, err := d.Payments.ParseWebhook(payload, sig)
		if err != nil {
			d.Resp.Error(w, r, apperr.Wrap(apperr.KindValidation, "invalid signature", err))
			return
		}
		if d.Metrics != nil {
			d.Metrics.WebhookEvent(ev.Type)
		}

		db, cancel := d.db(r)
		defer cancel()
		switch ev.Type {
		case payment.EventCheckoutCompleted:
			updates := map[string]interface{}{"status": models.PurchaseCompleted}
			if ev.PaymentIntentID != "" {
				updates["stripe_payment_id"] = ev.PaymentIntentID
			}
			err = settle(db, ev.SessionID, models.PurchaseCompleted, updates, d)
		case payment.EventCheckoutExpired:
			err = settle(db, ev.SessionID, models.PurchaseFailed, map[string]interface{}{"status": models.PurchaseFailed}, d)
		case payment.EventPaymentFailed:
			d.Log.Infow("payment failed", "event_id", ev.ID, "payment_intent", ev.PaymentIntentID)
		default:
			d.Log.Infow("unhandled webhook event", "event_id", ev.ID, "type", ev.Type)
		}
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]bool{"received": true})
	}
}

// settle applies updates to the purchase of sessionID only from states
// that may transition to next.
func settle(db *gorm.DB, sessionID string, next models.PurchaseStatus, updates map[string]interface{}, d *Deps) error {
	var from []models.PurchaseStatus
	for _, s := range []models.PurchaseStatus{models.PurchasePending, models.PurchaseCompleted, models.PurchaseFailed} {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}
	res := db.Model(&models.Purchase{}).
		Where("stripe_session_id = ? AND status IN ?", sessionID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("settle purchase: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		d.Log.Warnw("no purchase to settle", "session_id", sessionID, "status", next)
	} else {
		d.Log.Infow("purchase settled", "session_id", sessionID, "status", next)
	}
	return nil
}

func ListPurchases(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := auth.FromContext(r.Context())
		db, cancel := d.db(r)
		defer cancel()
		purchases := []models.PurchaseListing{}
		if err := db.Table("purchases AS p").
			Select("p.*, a.name AS app_name, a.icon AS app_icon, a.slug AS app_slug").
			Joins("JOIN apps a ON p.app_id = a.id").
			Where("p.user_id = ?", u.ID).
			Order("p.created_at DESC").Scan(&purchases).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]interface{}{"purchases": purchases})
	}
}

type ownership struct {
	Owns   bool   `json:"owns"`
	Reason string `json:"reason"`
}

func CheckOwnership(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := auth.FromContext(r.Context())
		id := chi.URLParam(r, "appId")
		if !util.IsUUID(id) {
			d.Resp.Error(w, r, apperr.NotFound("app not found"))
			return
		}
		db, cancel := d.db(r)
		defer cancel()
		var app models.App
		if err := db.Select("id", "price").First(&app, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = apperr.NotFound("app not found")
			}
			d.Resp.Error(w, r, err)
			return
		}
		if app.IsFree() {
			d.Resp.OK(w, ownership{Owns: true, Reason: "free"})
			return
		}
		owns, err := hasCompletedPurchase(db, u.ID, app.ID)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		reason := "not_purchased"
		if owns {
			reason = "purchased"
		}
		d.Resp.OK(w, ownership{Owns: owns, Reason: reason})
	}
}

type refundReq struct {
	Amount json.Number `json:"amount"`
}

// amount is zero for a full refund.
func (q refundReq) amount() (float64, error) {
	if q.Amount == "" {
		return 0, nil
	}
	a, err := q.Amount.Float64()
	if err != nil || a <= 0 {
		return 0, apperr.Validation("refund amount must be a positive number")
	}
	return a, nil
}

// RefundPurchase asks the provider to refund a completed purchase, in full
// or for amount, and records the refund id. The purchase status is left as is.
func RefundPurchase(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req refundReq
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		amount, err := req.amount()
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if !util.IsUUID(id) {
			d.Resp.Error(w, r, apperr.NotFound("purchase not found"))
			return
		}
		db, cancel := d.db(r)
		defer cancel()
		var p models.Purchase
		if err := db.First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = apperr.NotFound("purchase not found")
			}
			d.Resp.Error(w, r, err)
			return
		}
		switch {
		case p.Status != models.PurchaseCompleted:
			d.Resp.Error(w, r, apperr.Validation("only completed purchases can be refunded"))
			return
		case p.StripePaymentID == nil || *p.StripePaymentID == "":
			d.Resp.Error(w, r, apperr.Validation("purchase has no recorded payment"))
			return
		case p.StripeRefundID != nil:
			d.Resp.Error(w, r, apperr.Conflict("purchase already refunded"))
			return
		case amount > p.Amount:
			d.Resp.Error(w, r, apperr.Validation("refund amount exceeds the purchase amount"))
			return
		}

		refundID, err := d.Payments.Refund(r.Context(), *p.StripePaymentID, amount)
		if err != nil {
			d.Resp.Error(w, r, apperr.Wrap(apperr.KindInternal, "payment provider error", err))
			return
		}
		p.StripeRefundID = &refundID
		store, done := d.db(r)
		defer done()
		if err := store.Model(&models.Purchase{}).Where("id = ?", p.ID).
			Update("stripe_refund_id", refundID).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Log.Infow("purchase refunded", "purchase_id", p.ID, "refund_id", refundID, "admin_id", auth.UserID(r.Context()))
		d.Resp.OK(w, map[string]interface{}{"message": "refund issued", "purchase": &p})
	}
}
