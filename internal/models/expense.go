package models

import "time"

// Expense categories.
const (
	CategoryFood           = "Food"
	CategoryTransportation = "Transportation"
	CategoryStationary     = "Stationary"
	CategoryEntertainment  = "Entertainment"
	CategoryShopping       = "Shopping"
	CategoryOther          = "Other"
)

// Payment methods. Exactly two exist.
const (
	MethodCash = "Cash"
	MethodUPI  = "UPI"
)

// Expense represents a single recorded expense owned by a user.
type Expense struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Amount        float64   `json:"amount"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	PaymentMethod string    `json:"paymentMethod"`
	Sem           int       `json:"sem"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ValidCategory reports whether c is one of the known expense categories.
func ValidCategory(c string) bool {
	switch c {
	case CategoryFood, CategoryTransportation, CategoryStationary,
		CategoryEntertainment, CategoryShopping, CategoryOther:
		return true
	}
	return false
}

// ValidPaymentMethod reports whether m is Cash or UPI.
func ValidPaymentMethod(m string) bool {
	return m == MethodCash || m == MethodUPI
}
