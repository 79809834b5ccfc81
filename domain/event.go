package domain

// EventStatus is the lifecycle stage of an event as maintained by DJ tooling.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
)

// Event is the read model of a single gig. The queue and history subtrees are
// the only parts of it this service writes; everything else is owned by the
// DJ-side tooling.
type Event struct {
	ID             string      `json:"id"`
	DJID           string      `json:"djId"`
	Name           string      `json:"name"`
	Venue          string      `json:"venue,omitempty"`
	City           string      `json:"city,omitempty"`
	StartDate      string      `json:"startDate,omitempty"`
	EndDate        string      `json:"endDate,omitempty"`
	StartTime      string      `json:"startTime,omitempty"`
	EndTime        string      `json:"endTime,omitempty"`
	Status         EventStatus `json:"status,omitempty"`
	Live           bool        `json:"live"`
	Genres         []string    `json:"genres"`
	Tracks         []string    `json:"tracks"`
	Price          float64     `json:"price"`
	Currency       string      `json:"currency,omitempty"`
	CurrencySymbol string      `json:"currencySymbol,omitempty"`
}

// DJ is the public read model served to fans. Price and currency here are
// display copies; the canonical values live on the user profile and are the
// only ones used for charging.
type DJ struct {
	ID             string  `json:"id"`
	StageName      string  `json:"stageName"`
	Bio            string  `json:"bio,omitempty"`
	Cover          string  `json:"cover,omitempty"`
	Ratings        float64 `json:"ratings"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency,omitempty"`
	CurrencySymbol string  `json:"currencySymbol,omitempty"`
}

// CheckoutProfile carries the server-side pricing and payment linkage for a
// DJ, read immediately before creating a provider payment object. Client
// supplied pricing is never trusted.
type CheckoutProfile struct {
	Price     float64
	Currency  string
	AccountID string
	Onboarded bool
}
