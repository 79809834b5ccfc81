package domain

// CheckoutSession is a provider-hosted payment page for one song request.
type CheckoutSession struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// AccountStatus is the derived onboarding state of a connected account.
type AccountStatus struct {
	AccountID              string `json:"accountId"`
	OnboardingComplete     bool   `json:"onboardingComplete"`
	ReadyToReceivePayments bool   `json:"readyToReceivePayments"`
}

// Product is a priced request tier offered by a DJ, e.g. "1 Song Request".
// Amount is in major currency units.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	PriceID     string  `json:"priceId"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// BalanceAmount is one currency bucket of a connected account's balance,
// in major units.
type BalanceAmount struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Balance is a connected account's settled and in-flight funds.
type Balance struct {
	Available []BalanceAmount `json:"available"`
	Pending   []BalanceAmount `json:"pending"`
}

// Payout is a manual withdrawal from a connected account's settled balance.
type Payout struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}
