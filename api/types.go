package api

import (
	"context"

	"djtunez-api/domain"
)

// Storage abstracts the hierarchical document store for handlers.
type Storage interface {
	FetchEvent(ctx context.Context, eventID string) (domain.Event, error)
	FetchDJ(ctx context.Context, djID string) (domain.DJ, error)
	FetchLiveEvent(ctx context.Context, djID string) (domain.Event, error)
	// AppendToQueue writes a song request to the back of the event's queue
	// and returns the store-generated entry id. Absent event yields
	// domain.ErrNotFound and no write.
	AppendToQueue(ctx context.Context, eventID string, req domain.SongRequest) (string, error)
	FetchCheckoutProfile(ctx context.Context, djID string) (domain.CheckoutProfile, error)
	SyncOnboarding(ctx context.Context, accountID string, submitted bool) error
	FetchAccountLinkage(ctx context.Context, uid string) (accountID string, eventIDs []string, err error)
	DeleteEventTree(ctx context.Context, eventID string) error
	DeleteUserTree(ctx context.Context, uid string) error
}

// Identity verifies bearer credentials and manages identity records.
type Identity interface {
	VerifySession(ctx context.Context, authHeader string) (domain.Session, error)
	GrantDJRole(ctx context.Context, uid string) error
	// DeleteUser revokes the identity record. Called last in the account
	// deletion cascade so in-flight store operations keep a valid
	// credential.
	DeleteUser(ctx context.Context, uid string) error
}

// Payments is the hosted payments provider.
type Payments interface {
	CreateIntent(ctx context.Context, m domain.QueueMetadata) (clientSecret string, err error)
	CreateCheckout(ctx context.Context, accountID, successURL, cancelURL string, m domain.QueueMetadata) (domain.CheckoutSession, error)
	// VerifyWebhook checks the provider signature over the exact raw body
	// and classifies the event. The payload must be the unparsed bytes.
	VerifyWebhook(payload []byte, sigHeader string) (domain.WebhookEvent, error)
	CloseAccount(ctx context.Context, accountID string) error

	CreateAccount(ctx context.Context, displayName, country, email string) (accountID string, err error)
	AccountStatus(ctx context.Context, accountID string) (domain.AccountStatus, error)
	OnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error)
	CreateProduct(ctx context.Context, name, description string, amount float64, currency, connectedAccountID string) (domain.Product, error)
	ListProducts(ctx context.Context, connectedAccountID string) ([]domain.Product, error)
	Balance(ctx context.Context, accountID string) (domain.Balance, error)
	Payout(ctx context.Context, accountID string, amount float64, currency string) (domain.Payout, error)
}

// Deduper tracks processed webhook event ids so redelivered events do not
// produce duplicate queue entries. Optional: a nil Deduper keeps the
// provider's at-least-once semantics as-is.
type Deduper interface {
	// Add records the event id and returns true if it was newly added.
	Add(ctx context.Context, provider, eventID string) (bool, error)
	// Remove deletes a previously added id, used when downstream
	// processing fails so the provider's retry can land.
	Remove(ctx context.Context, provider, eventID string) error
}
