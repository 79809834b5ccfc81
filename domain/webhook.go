package domain

// WebhookKind is the closed set of provider webhook events this service acts
// on. Everything else maps to WebhookUnhandled, which is acknowledged without
// action so the provider never retries an event we will never process.
type WebhookKind int

const (
	WebhookUnhandled WebhookKind = iota
	WebhookAccountUpdated
	WebhookPaymentSucceeded
	WebhookCheckoutCompleted
)

// WebhookEvent is a signature-verified provider event, already classified.
type WebhookEvent struct {
	ID      string
	Kind    WebhookKind
	Account *AccountUpdate
	Payment *PaymentConfirmation
}

// AccountUpdate carries the onboarding state of a connected account.
type AccountUpdate struct {
	AccountID        string
	DetailsSubmitted bool
}

// PaymentConfirmation is a confirmed payment with its replayed metadata.
// Paid is false for checkout sessions that completed without payment
// (delayed payment methods); those must not reach the queue.
type PaymentConfirmation struct {
	Paid     bool
	Metadata QueueMetadata
}
