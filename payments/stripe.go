// Package payments wraps the hosted payments provider: payment intents,
// hosted checkout, Connect account management and webhook signature
// verification.
package payments

import (
	"context"
	"math"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"djtunez-api/domain"
)

// Stripe is a thin adapter over the Stripe client. It holds no per-request
// state; one instance is built at startup and shared.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

// New builds the adapter from the platform secret key and the endpoint's
// webhook signing secret.
func New(secretKey, webhookSecret string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api, webhookSecret: webhookSecret}
}

// minorUnits converts a major-unit amount (e.g. 2.99) to provider minor
// units (299).
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateIntent creates a payment intent carrying the full queue metadata so
// the confirming webhook can reconstruct the song request on its own.
func (s *Stripe) CreateIntent(ctx context.Context, m domain.QueueMetadata) (string, error) {
	amount, err := strconv.ParseFloat(m.Amount, 64)
	if err != nil {
		return "", err
	}
	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(minorUnits(amount)),
		Currency:     stripe.String(m.Currency),
		ReceiptEmail: stripe.String(m.RequesterEmail),
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	for k, v := range m.Map() {
		params.AddMetadata(k, v)
	}
	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", err
	}
	return intent.ClientSecret, nil
}

// CreateCheckout creates a provider-hosted checkout session with a
// destination charge to the DJ's connected account. The queue write happens
// later, exclusively through the confirming webhook; this call never touches
// the store.
func (s *Stripe) CreateCheckout(ctx context.Context, accountID, successURL, cancelURL string, m domain.QueueMetadata) (domain.CheckoutSession, error) {
	amount, err := strconv.ParseFloat(m.Amount, 64)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(m.Currency),
				UnitAmount: stripe.Int64(minorUnits(amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Song Request - " + m.Title),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		CustomerEmail: stripe.String(m.RequesterEmail),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(accountID),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	for k, v := range m.Map() {
		params.AddMetadata(k, v)
	}
	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	return domain.CheckoutSession{URL: session.URL, SessionID: session.ID}, nil
}

// VerifyWebhook recomputes the provider signature over the exact raw body and
// classifies the event onto the closed domain set. The caller must hand over
// the unparsed payload bytes; a re-serialized body would change byte layout
// and fail verification.
func (s *Stripe) VerifyWebhook(payload []byte, sigHeader string) (domain.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return domain.WebhookEvent{}, err
	}
	return classifyEvent(event)
}

func classifyEvent(event stripe.Event) (domain.WebhookEvent, error) {
	out := domain.WebhookEvent{ID: event.ID, Kind: domain.WebhookUnhandled}

	switch event.Type {
	case "account.updated":
		var acct stripe.Account
		if err := sonic.Unmarshal(event.Data.Raw, &acct); err != nil {
			return domain.WebhookEvent{}, err
		}
		out.Kind = domain.WebhookAccountUpdated
		out.Account = &domain.AccountUpdate{
			AccountID:        acct.ID,
			DetailsSubmitted: acct.DetailsSubmitted,
		}

	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := sonic.Unmarshal(event.Data.Raw, &intent); err != nil {
			return domain.WebhookEvent{}, err
		}
		out.Kind = domain.WebhookPaymentSucceeded
		out.Payment = &domain.PaymentConfirmation{
			Paid:     true,
			Metadata: metadataFromMap(intent.Metadata),
		}

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := sonic.Unmarshal(event.Data.Raw, &session); err != nil {
			return domain.WebhookEvent{}, err
		}
		out.Kind = domain.WebhookCheckoutCompleted
		out.Payment = &domain.PaymentConfirmation{
			// A session can complete without payment in delayed
			// payment-method flows.
			Paid:     session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
			Metadata: metadataFromMap(session.Metadata),
		}
	}

	return out, nil
}

func metadataFromMap(m map[string]string) domain.QueueMetadata {
	return domain.QueueMetadata{
		DJID:           m["djId"],
		EventID:        m["eventId"],
		Title:          m["title"],
		Artist:         m["artist"],
		Cover:          m["cover"],
		RequesterEmail: m["requesterEmail"],
		Amount:         m["amount"],
		Currency:       m["currency"],
	}
}

// CloseAccount deletes a DJ's connected account at the provider.
func (s *Stripe) CloseAccount(ctx context.Context, accountID string) error {
	params := &stripe.AccountParams{}
	params.Context = ctx
	_, err := s.api.Accounts.Del(accountID, params)
	return err
}

// CreateAccount creates an Express connected account for a DJ.
func (s *Stripe) CreateAccount(ctx context.Context, displayName, country, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(country),
		Email:   stripe.String(email),
		BusinessProfile: &stripe.AccountBusinessProfileParams{
			Name: stripe.String(displayName),
		},
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	account, err := s.api.Accounts.New(params)
	if err != nil {
		return "", err
	}
	return account.ID, nil
}

// AccountStatus retrieves a connected account and derives its onboarding and
// payout-readiness flags.
func (s *Stripe) AccountStatus(ctx context.Context, accountID string) (domain.AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	account, err := s.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return domain.AccountStatus{}, err
	}
	ready := account.Capabilities != nil &&
		account.Capabilities.Transfers == stripe.AccountCapabilityStatusActive
	return domain.AccountStatus{
		AccountID:              account.ID,
		OnboardingComplete:     account.DetailsSubmitted,
		ReadyToReceivePayments: ready,
	}, nil
}

// OnboardingLink generates a short-lived hosted onboarding URL.
func (s *Stripe) OnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		Type:       stripe.String("account_onboarding"),
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
	}
	params.Context = ctx
	link, err := s.api.AccountLinks.New(params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// CreateProduct creates a product and its price tier. Amount is in major
// units and converted to provider minor units here.
func (s *Stripe) CreateProduct(ctx context.Context, name, description string, amount float64, currency, connectedAccountID string) (domain.Product, error) {
	productParams := &stripe.ProductParams{
		Name:   stripe.String(name),
		Active: stripe.Bool(true),
	}
	if description != "" {
		productParams.Description = stripe.String(description)
	}
	productParams.Context = ctx
	productParams.SetIdempotencyKey(uuid.NewString())
	productParams.AddMetadata("dj_product", "true")
	productParams.AddMetadata("connected_account_id", connectedAccountID)
	product, err := s.api.Products.New(productParams)
	if err != nil {
		return domain.Product{}, err
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(product.ID),
		UnitAmount: stripe.Int64(minorUnits(amount)),
		Currency:   stripe.String(currency),
	}
	priceParams.Context = ctx
	price, err := s.api.Prices.New(priceParams)
	if err != nil {
		return domain.Product{}, err
	}

	return domain.Product{
		ID:          product.ID,
		Name:        product.Name,
		Description: description,
		PriceID:     price.ID,
		Amount:      amount,
		Currency:    currency,
	}, nil
}

// ListProducts lists active DJ products, filtered by connected account when
// one is given. The provider cannot filter list calls by metadata, so the
// filter is applied after fetching.
func (s *Stripe) ListProducts(ctx context.Context, connectedAccountID string) ([]domain.Product, error) {
	params := &stripe.ProductListParams{
		Active: stripe.Bool(true),
	}
	params.Context = ctx
	params.AddExpand("data.default_price")

	products := []domain.Product{}
	iter := s.api.Products.List(params)
	for iter.Next() {
		p := iter.Product()
		if connectedAccountID != "" && p.Metadata["connected_account_id"] != connectedAccountID {
			continue
		}
		out := domain.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
		}
		if p.DefaultPrice != nil {
			out.PriceID = p.DefaultPrice.ID
			out.Amount = float64(p.DefaultPrice.UnitAmount) / 100
			out.Currency = string(p.DefaultPrice.Currency)
		}
		products = append(products, out)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// Balance reads a connected account's available and pending balance in major
// units.
func (s *Stripe) Balance(ctx context.Context, accountID string) (domain.Balance, error) {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	balance, err := s.api.Balance.Get(params)
	if err != nil {
		return domain.Balance{}, err
	}
	out := domain.Balance{
		Available: make([]domain.BalanceAmount, 0, len(balance.Available)),
		Pending:   make([]domain.BalanceAmount, 0, len(balance.Pending)),
	}
	for _, b := range balance.Available {
		out.Available = append(out.Available, domain.BalanceAmount{
			Amount:   float64(b.Amount) / 100,
			Currency: string(b.Currency),
		})
	}
	for _, b := range balance.Pending {
		out.Pending = append(out.Pending, domain.BalanceAmount{
			Amount:   float64(b.Amount) / 100,
			Currency: string(b.Currency),
		})
	}
	return out, nil
}

// Payout initiates a manual withdrawal from the DJ's settled balance.
func (s *Stripe) Payout(ctx context.Context, accountID string, amount float64, currency string) (domain.Payout, error) {
	params := &stripe.PayoutParams{
		Amount:   stripe.Int64(minorUnits(amount)),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	params.SetIdempotencyKey(uuid.NewString())
	payout, err := s.api.Payouts.New(params)
	if err != nil {
		return domain.Payout{}, err
	}
	return domain.Payout{
		ID:     payout.ID,
		Status: string(payout.Status),
		Amount: float64(payout.Amount) / 100,
	}, nil
}
