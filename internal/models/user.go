package models

import "time"

// MethodBalance is the running total for a single payment method, maintained
// alongside the expense ledger rather than derived from it.
type MethodBalance struct {
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Balance holds the per-method balances of a user.
type Balance struct {
	Cash MethodBalance `json:"cash"`
	UPI  MethodBalance `json:"upi"`
}

// FullName is a user's first and last name.
type FullName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// User represents a user account in the system.
type User struct {
	ID           string   `json:"id"`
	FullName     FullName `json:"fullName"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"` // Never expose this to the client
	Balance      Balance  `json:"balance"`
	// Lifetime top-ups per method. Together with the expense ledger these
	// determine what each balance ought to be; the auditor checks that.
	DepositedCash float64   `json:"-"`
	DepositedUPI  float64   `json:"-"`
	ActiveSem     int       `json:"activeSem"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
