package services

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/arnvgh/semspend-be/internal/apierr"
	"github.com/arnvgh/semspend-be/internal/models"
)

// EditExpenseInput carries the optional fields of an edit request. Nil means
// "leave unchanged".
type EditExpenseInput struct {
	Amount        *float64
	Description   *string
	Category      *string
	PaymentMethod *string
}

// MethodSpend is the per-payment-method aggregate over a user's expenses.
type MethodSpend struct {
	TotalAmountSpent float64   `json:"totalAmountSpent"`
	LastSpentDate    time.Time `json:"lastSpentDate"`
}

// SpendInfo is the dashboard summary payload: stored balances combined with
// the active-semester aggregates, keyed by lowercased payment-method name.
type SpendInfo struct {
	CurrentInfo models.Balance         `json:"currentInfo"`
	SpentInfo   map[string]MethodSpend `json:"spentInfo"`
}

// ExpenseServiceProvider defines the interface for expense services.
type ExpenseServiceProvider interface {
	AddExpense(userID string, amount float64, description, category, paymentMethod string) (models.Expense, error)
	EditExpense(userID, expenseID string, input EditExpenseInput) (models.Expense, error)
	DeleteExpense(userID, expenseID string) error
	GetSpendInfo(userID string) (SpendInfo, error)
	GetAllExpenses(userID string) ([]models.Expense, error)
	GetExpensesBySem(userID string, sem int) ([]models.Expense, error)
}

// ExpenseService implements the balance-mutation protocol: every expense
// mutation and its matching balance write happen in one transaction, so the
// stored balances always agree with the ledger.
type ExpenseService struct {
	db       *sql.DB
	eventSvc EventServiceProvider
	notifier Notifier
}

// NewExpenseService creates a new ExpenseService.
func NewExpenseService(db *sql.DB, eventSvc EventServiceProvider, notifier Notifier) *ExpenseService {
	return &ExpenseService{db: db, eventSvc: eventSvc, notifier: notifier}
}

const expenseColumns = "id, user_id, amount, description, category, payment_method, sem, created_at, updated_at"

func scanExpense(row rowScanner) (models.Expense, error) {
	var e models.Expense
	err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.Description, &e.Category,
		&e.PaymentMethod, &e.Sem, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// balanceColumn maps a payment method to its balance column. Callers must
// have validated the method against the enum first.
func balanceColumn(method string) string {
	if method == models.MethodCash {
		return "balance_cash_amount"
	}
	return "balance_upi_amount"
}

func methodBalance(user models.User, method string) float64 {
	if method == models.MethodCash {
		return user.Balance.Cash.Amount
	}
	return user.Balance.UPI.Amount
}

func loadUser(tx *sql.Tx, userID string) (models.User, error) {
	row := tx.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", userID)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.User{}, apierr.New(http.StatusUnauthorized, "Unauthorized request")
		}
		return models.User{}, err
	}
	return user, nil
}

// AddExpense validates the fields, checks balance sufficiency and creates the
// expense while debiting the chosen method's balance.
func (s *ExpenseService) AddExpense(userID string, amount float64, description, category, paymentMethod string) (models.Expense, error) {
	if amount == 0 || strings.TrimSpace(description) == "" ||
		strings.TrimSpace(category) == "" || strings.TrimSpace(paymentMethod) == "" {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "All fields are required")
	}
	if len(description) < 3 {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "Description must be at least 3 characters long")
	}
	if amount <= 0 {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "Amount must be a positive number")
	}
	if !models.ValidCategory(category) {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "Invalid category")
	}
	if !models.ValidPaymentMethod(paymentMethod) {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "Invalid payment method")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return models.Expense{}, err
	}
	defer tx.Rollback()

	user, err := loadUser(tx, userID)
	if err != nil {
		return models.Expense{}, err
	}

	if amount > methodBalance(user, paymentMethod) {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "Insufficient balance")
	}

	now := time.Now().UTC()
	expense := models.Expense{
		ID:            uuid.New().String(),
		UserID:        userID,
		Amount:        amount,
		Description:   description,
		Category:      category,
		PaymentMethod: paymentMethod,
		Sem:           user.ActiveSem,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = tx.Exec(`
		INSERT INTO expenses (id, user_id, amount, description, category, payment_method, sem, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.UserID, expense.Amount, expense.Description,
		expense.Category, expense.PaymentMethod, expense.Sem, expense.CreatedAt, expense.UpdatedAt)
	if err != nil {
		return models.Expense{}, err
	}

	col := balanceColumn(paymentMethod)
	if _, err = tx.Exec(
		fmt.Sprintf("UPDATE users SET %s = %s - ?, updated_at = ? WHERE id = ?", col, col),
		amount, now, userID); err != nil {
		return models.Expense{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Expense{}, err
	}

	log.Info().Str("user_id", userID).Str("expense_id", expense.ID).
		Float64("amount", amount).Str("method", paymentMethod).Msg("Expense added")

	s.recordEvent(userID, "expense.add",
		fmt.Sprintf("Added %q for %.2f (%s)", description, amount, paymentMethod))
	s.notify(userID, "expense_added", expense)

	return expense, nil
}

// EditExpense applies a partial update to an owned expense and re-applies the
// amount delta to the balance of the method the expense had before the edit.
// When the edit also changes the payment method the delta still lands on the
// old method's balance.
func (s *ExpenseService) EditExpense(userID, expenseID string, input EditExpenseInput) (models.Expense, error) {
	if input.Amount == nil && input.Description == nil && input.Category == nil && input.PaymentMethod == nil {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "At least one field must be provided to update the expense")
	}
	if input.Amount != nil && *input.Amount <= 0 {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "Amount must be a positive number")
	}
	if input.Description != nil && len(*input.Description) < 3 {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "Description must be at least 3 characters long")
	}
	if input.Category != nil && !models.ValidCategory(*input.Category) {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "Invalid category")
	}
	if input.PaymentMethod != nil && !models.ValidPaymentMethod(*input.PaymentMethod) {
		return models.Expense{}, apierr.New(http.StatusBadRequest, "Invalid payment method")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return models.Expense{}, err
	}
	defer tx.Rollback()

	user, err := loadUser(tx, userID)
	if err != nil {
		return models.Expense{}, err
	}

	expense, err := scanExpense(tx.QueryRow("SELECT "+expenseColumns+" FROM expenses WHERE id = ?", expenseID))
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Expense{}, apierr.New(http.StatusNotFound, "Expense not found")
		}
		return models.Expense{}, err
	}

	if expense.UserID != userID {
		return models.Expense{}, apierr.New(http.StatusForbidden, "Only the owner can update the expense")
	}
	if user.ActiveSem > expense.Sem {
		return models.Expense{}, apierr.New(http.StatusUnauthorized, "Past Sem expenses are not allowed to update")
	}

	amountDelta := 0.0
	if input.Amount != nil {
		amountDelta = *input.Amount - expense.Amount
		expense.Amount = *input.Amount
	}

	// The delta is settled against the pre-edit payment method.
	oldMethod := expense.PaymentMethod

	if input.Description != nil {
		expense.Description = *input.Description
	}
	if input.Category != nil {
		expense.Category = *input.Category
	}
	if input.PaymentMethod != nil {
		expense.PaymentMethod = *input.PaymentMethod
	}

	now := time.Now().UTC()
	expense.UpdatedAt = now

	_, err = tx.Exec(`
		UPDATE expenses SET amount = ?, description = ?, category = ?, payment_method = ?, updated_at = ?
		WHERE id = ?`,
		expense.Amount, expense.Description, expense.Category, expense.PaymentMethod, now, expenseID)
	if err != nil {
		return models.Expense{}, err
	}

	if amountDelta != 0 {
		col := balanceColumn(oldMethod)
		if _, err = tx.Exec(
			fmt.Sprintf("UPDATE users SET %s = %s - ?, updated_at = ? WHERE id = ?", col, col),
			amountDelta, now, userID); err != nil {
			return models.Expense{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Expense{}, err
	}

	log.Info().Str("user_id", userID).Str("expense_id", expenseID).
		Float64("amount_delta", amountDelta).Msg("Expense updated")

	s.recordEvent(userID, "expense.edit", fmt.Sprintf("Updated expense %q", expense.Description))
	s.notify(userID, "expense_updated", expense)

	return expense, nil
}

// DeleteExpense removes an owned expense and credits its amount back to the
// matching balance.
func (s *ExpenseService) DeleteExpense(userID, expenseID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := loadUser(tx, userID); err != nil {
		return err
	}

	expense, err := scanExpense(tx.QueryRow("SELECT "+expenseColumns+" FROM expenses WHERE id = ?", expenseID))
	if err != nil {
		if err == sql.ErrNoRows {
			return apierr.New(http.StatusNotFound, "Expense not found")
		}
		return err
	}

	if expense.UserID != userID {
		return apierr.New(http.StatusForbidden, "Only the owner can delete the expense")
	}

	if _, err := tx.Exec("DELETE FROM expenses WHERE id = ?", expenseID); err != nil {
		return err
	}

	now := time.Now().UTC()
	col := balanceColumn(expense.PaymentMethod)
	if _, err := tx.Exec(
		fmt.Sprintf("UPDATE users SET %s = %s + ?, updated_at = ? WHERE id = ?", col, col),
		expense.Amount, now, userID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info().Str("user_id", userID).Str("expense_id", expenseID).
		Float64("amount", expense.Amount).Msg("Expense deleted")

	s.recordEvent(userID, "expense.delete", fmt.Sprintf("Deleted expense %q", expense.Description))
	s.notify(userID, "expense_deleted", map[string]string{"id": expenseID})

	return nil
}

// GetSpendInfo aggregates the user's active-semester expenses per payment
// method and combines them with the stored balances. Zero expenses yield an
// empty spentInfo map, not an error.
func (s *ExpenseService) GetSpendInfo(userID string) (SpendInfo, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", userID)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return SpendInfo{}, apierr.New(http.StatusNotFound, "User not found")
		}
		return SpendInfo{}, err
	}

	rows, err := s.db.Query(`
		SELECT payment_method, amount, created_at
		FROM expenses
		WHERE user_id = ? AND sem = ?`, userID, user.ActiveSem)
	if err != nil {
		return SpendInfo{}, err
	}
	defer rows.Close()

	info := SpendInfo{
		CurrentInfo: user.Balance,
		SpentInfo:   make(map[string]MethodSpend),
	}
	for rows.Next() {
		var method string
		var amount float64
		var createdAt time.Time
		if err := rows.Scan(&method, &amount, &createdAt); err != nil {
			return SpendInfo{}, err
		}
		key := strings.ToLower(method)
		spend := info.SpentInfo[key]
		spend.TotalAmountSpent += amount
		if createdAt.After(spend.LastSpentDate) {
			spend.LastSpentDate = createdAt
		}
		info.SpentInfo[key] = spend
	}
	return info, rows.Err()
}

// GetAllExpenses returns every expense of the user, newest first.
func (s *ExpenseService) GetAllExpenses(userID string) ([]models.Expense, error) {
	rows, err := s.db.Query(
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExpenses(rows)
}

// GetExpensesBySem returns the user's expenses for one semester, newest
// first. Semesters later than the active one are invalid.
func (s *ExpenseService) GetExpensesBySem(userID string, sem int) ([]models.Expense, error) {
	row := s.db.QueryRow("SELECT active_sem FROM users WHERE id = ?", userID)
	var activeSem int
	if err := row.Scan(&activeSem); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.New(http.StatusUnauthorized, "User not found")
		}
		return nil, err
	}
	if sem > activeSem {
		return nil, apierr.New(http.StatusBadRequest, "Requested sem is invalid")
	}

	rows, err := s.db.Query(
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? AND sem = ? ORDER BY created_at DESC",
		userID, sem)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func collectExpenses(rows *sql.Rows) ([]models.Expense, error) {
	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *ExpenseService) recordEvent(userID, eventType, message string) {
	if s.eventSvc == nil {
		return
	}
	if err := s.eventSvc.CreateEvent(eventType, "info", message, &userID); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record event")
	}
}

func (s *ExpenseService) notify(userID, action string, payload interface{}) {
	if s.notifier != nil {
		s.notifier.NotifyUser(userID, action, payload)
	}
}
