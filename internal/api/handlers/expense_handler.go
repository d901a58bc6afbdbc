package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/arnvgh/semspend-be/internal/apierr"
	"github.com/arnvgh/semspend-be/internal/auth"
	"github.com/arnvgh/semspend-be/internal/services"
)

// ExpenseHandler handles HTTP requests for the expense ledger.
type ExpenseHandler struct {
	service services.ExpenseServiceProvider
}

// NewExpenseHandler creates a new ExpenseHandler.
func NewExpenseHandler(service services.ExpenseServiceProvider) *ExpenseHandler {
	return &ExpenseHandler{service: service}
}

// AddExpensePayload defines the structure for add requests.
type AddExpensePayload struct {
	Amount        float64 `json:"amount"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	PaymentMethod string  `json:"paymentMethod"`
}

// EditExpensePayload defines the structure for edit requests; absent fields
// stay unchanged.
type EditExpensePayload struct {
	Amount        *float64 `json:"amount"`
	Description   *string  `json:"description"`
	Category      *string  `json:"category"`
	PaymentMethod *string  `json:"paymentMethod"`
}

// Add records a new expense and debits the matching balance.
func (h *ExpenseHandler) Add(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierr.New(http.StatusUnauthorized, "Unauthorized request"))
		return
	}

	var payload AddExpensePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierr.New(http.StatusBadRequest, "Invalid request body"))
		return
	}

	expense, err := h.service.AddExpense(claims.UserID, payload.Amount,
		payload.Description, payload.Category, payload.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Expense added successfully", expense)
}

// Edit applies a partial update to an owned expense.
func (h *ExpenseHandler) Edit(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierr.New(http.StatusUnauthorized, "Unauthorized request"))
		return
	}

	expenseID := r.URL.Query().Get("expenseId")
	if expenseID == "" {
		writeError(w, apierr.New(http.StatusBadRequest, "Expense ID is required"))
		return
	}

	var payload EditExpensePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierr.New(http.StatusBadRequest, "Invalid request body"))
		return
	}

	expense, err := h.service.EditExpense(claims.UserID, expenseID, services.EditExpenseInput{
		Amount:        payload.Amount,
		Description:   payload.Description,
		Category:      payload.Category,
		PaymentMethod: payload.PaymentMethod,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Expense updated successfully", expense)
}

// Delete removes an owned expense and restores the matching balance.
func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierr.New(http.StatusUnauthorized, "Unauthorized request"))
		return
	}

	expenseID := r.URL.Query().Get("expenseId")
	if expenseID == "" {
		writeError(w, apierr.New(http.StatusBadRequest, "Expense ID is required"))
		return
	}

	if err := h.service.DeleteExpense(claims.UserID, expenseID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Expense deleted successfully", map[string]interface{}{})
}

// GetInfo returns the dashboard summary for the caller's active semester.
func (h *ExpenseHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierr.New(http.StatusUnauthorized, "Unauthorized request"))
		return
	}

	info, err := h.service.GetSpendInfo(claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Amount spent fetched successfully", info)
}
