package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumen-search/backend/pkg/services/db"
	"github.com/lumen-search/backend/pkg/services/db/subscriptions"
	"github.com/lumen-search/backend/pkg/services/db/users"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

const webhookSecretId = "STRIPE_WEBHOOK_SECRET"

func (cl *Client) setupWebhook(ctx context.Context) error {
	cl.mu.RLock()
	if cl.webhookSecret != "" {
		cl.mu.RUnlock()
		return nil
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.webhookSecret != "" {
		return nil
	}
	webhookSecret, err := cl.secr.FetchEnv(ctx, webhookSecretId)
	if err != nil {
		return err
	}
	cl.webhookSecret = webhookSecret
	slog.Info("stripe webhook secret set", "secret_id", webhookSecretId)
	return nil
}

func (cl *Client) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := cl.setupWebhook(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("error reading webhook body", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	signatureHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, signatureHeader, cl.webhookSecret)
	if err != nil {
		slog.Error("webhook signature verification failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			slog.Error("error parsing webhook JSON", "error", err, "type", event.Type)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := cl.recordSubscription(r.Context(), &sub); err != nil {
			slog.Error("error recording subscription", "error", err, "sub_id", sub.ID)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			slog.Error("error parsing webhook JSON", "error", err, "type", event.Type)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// The subscription row is written by the customer.subscription.created
		// event; here we just drop the cache so pro status flips immediately.
		uid := sess.Metadata["userID"]
		if uid != "" {
			cl.userData.Invalidate(uid)
		}
		slog.Info("checkout completed", "userID", uid, "session_id", sess.ID)

	default:
		slog.Debug("unhandled event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (cl *Client) recordSubscription(ctx context.Context, sub *stripe.Subscription) error {
	uid := sub.Metadata["userID"]
	if uid == "" {
		return fmt.Errorf("subscription %s has no userID metadata", sub.ID)
	}
	user := users.User{UID: uid}
	if err := user.GetByUID(ctx, db.D); err != nil {
		return fmt.Errorf("failed to resolve user %s: %w", uid, err)
	}
	row := subscriptions.Subscription{
		UserID:            user.ID,
		StripeSubID:       sub.ID,
		Status:            string(sub.Status),
		CurrentPeriodEnd:  time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		row.StripeCustomerID = sub.Customer.ID
	}
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		row.PriceID = sub.Items.Data[0].Price.ID
	}
	if err := row.Upsert(ctx, db.D); err != nil {
		return err
	}
	cl.userData.Invalidate(uid)
	slog.Info("subscription recorded",
		"userID", uid,
		"sub_id", sub.ID,
		"status", row.Status,
		"price_id", row.PriceID,
		"period_end", row.CurrentPeriodEnd,
	)
	return nil
}
