package stripe

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sync"

	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/authfirebase"
	"github.com/lumen-search/backend/pkg/services/db"
	"github.com/lumen-search/backend/pkg/services/db/subscriptions"
	"github.com/lumen-search/backend/pkg/services/db/users"
	"github.com/lumen-search/backend/pkg/services/userdata"
	"github.com/stripe/stripe-go/v80"
	portalsession "github.com/stripe/stripe-go/v80/billingportal/session"
	"github.com/stripe/stripe-go/v80/checkout/session"
)

func (cl *Client) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/stripe/checkout-session", cl.CreateCheckoutSession)
	mux.HandleFunc("POST /v1/stripe/portal-session", cl.CreatePortalSession)
	mux.HandleFunc("POST /v1/stripe/webhook", cl.HandleWebhook)
}

type Client struct {
	secr          *secr.Client
	auth          *authfirebase.Client
	userData      *userdata.Service
	mu            sync.RWMutex
	webhookSecret string
}

func NewClient(secr *secr.Client, auth *authfirebase.Client, userData *userdata.Service) *Client {
	return &Client{secr: secr, auth: auth, userData: userData}
}

const secretKeyId = "STRIPE_SECRET_KEY"

func (cl *Client) setupCheckoutSession(ctx context.Context) error {
	cl.mu.RLock()
	if stripe.Key != "" {
		cl.mu.RUnlock()
		return nil
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if stripe.Key != "" {
		return nil
	}
	stripeKey, err := cl.secr.FetchEnv(ctx, secretKeyId)
	if err != nil {
		return err
	}
	stripe.Key = stripeKey
	slog.Debug("loaded stripe secret key", "secret_id", secretKeyId)
	return nil
}

// priceForPlan maps a plan name from the client to the Stripe price.
// Unknown plans default to monthly.
func priceForPlan(plan string) string {
	switch plan {
	case "pro-yearly":
		return envs.PRICE_ID_PRO_YEARLY
	default:
		return envs.PRICE_ID_PRO_MONTHLY
	}
}

func (cl *Client) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	if err := cl.setupCheckoutSession(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	tok, err := cl.auth.VerifyTokenFromForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	userID := r.FormValue("userID")
	if err := tok.Check(userID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	priceID := priceForPlan(r.FormValue("plan"))

	params := &stripe.CheckoutSessionParams{
		ClientReferenceID: stripe.String(userID),
		Metadata: map[string]string{
			"userID": userID,
		},
		CustomerEmail: ptr(r.FormValue("email")),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				Price:    stripe.String(priceID),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: ptr(r.FormValue("successURL")),
		CancelURL:  ptr(r.FormValue("cancelURL")),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"userID": userID,
			},
		},
		AutomaticTax: &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(true)},
	}

	s, err := session.New(params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, s.URL, http.StatusSeeOther)
}

// CreatePortalSession redirects a subscribed user to the Stripe customer
// portal where they can change plan or cancel.
func (cl *Client) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	if err := cl.setupCheckoutSession(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	tok, err := cl.auth.VerifyTokenFromForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	userID := r.FormValue("userID")
	if err := tok.Check(userID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	user := users.User{UID: userID}
	if err := user.GetByUID(r.Context(), db.D); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	customerID, err := subscriptions.CustomerIDForUser(r.Context(), db.Read(), user.ID)
	if err == sql.ErrNoRows {
		http.Error(w, "no subscription on file", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: ptr(r.FormValue("returnURL")),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, s.URL, http.StatusSeeOther)
}

// ptr converts a string to a pointer, mapping empty to nil so optional
// Stripe params are omitted.
func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
