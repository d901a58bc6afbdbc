package services

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/arnvgh/semspend-be/internal/apierr"
	"github.com/arnvgh/semspend-be/internal/database"
	"github.com/arnvgh/semspend-be/internal/models"
)

// ExpenseServiceTestSuite exercises the balance-mutation protocol against an
// in-memory database.
type ExpenseServiceTestSuite struct {
	suite.Suite
	userSvc    *UserService
	expenseSvc *ExpenseService
	user       models.User
}

// SetupTest runs before each test: fresh database, one user with 500 cash
// and 300 UPI.
func (s *ExpenseServiceTestSuite) SetupTest() {
	db, err := database.New(":memory:")
	require.NoError(s.T(), err, "failed to open test database")
	// A transaction must see the same in-memory database as every other query.
	db.SetMaxOpenConns(1)
	require.NoError(s.T(), database.Migrate(db))

	eventSvc := NewEventService(db)
	s.userSvc = NewUserService(db, eventSvc, nil)
	s.expenseSvc = NewExpenseService(db, eventSvc, nil)

	user, err := s.userSvc.CreateUser(
		models.FullName{FirstName: "Asha", LastName: "Verma"},
		"asha_v", "asha@example.com", "supersecret")
	require.NoError(s.T(), err)

	_, err = s.userSvc.UpdateBalance(user.ID, 500, 300)
	require.NoError(s.T(), err)

	s.user, err = s.userSvc.GetUserByID(user.ID)
	require.NoError(s.T(), err)
}

func (s *ExpenseServiceTestSuite) balance(method string) float64 {
	user, err := s.userSvc.GetUserByID(s.user.ID)
	require.NoError(s.T(), err)
	return methodBalance(user, method)
}

func (s *ExpenseServiceTestSuite) requireAPIError(err error, statusCode int) *apierr.Error {
	require.Error(s.T(), err)
	apiErr, ok := apierr.From(err)
	require.True(s.T(), ok, "expected a tagged api error, got %v", err)
	assert.Equal(s.T(), statusCode, apiErr.StatusCode)
	return apiErr
}

func (s *ExpenseServiceTestSuite) TestAddDebitsBalance() {
	expense, err := s.expenseSvc.AddExpense(s.user.ID, 100, "Groceries", models.CategoryFood, models.MethodCash)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), 400.0, s.balance(models.MethodCash))
	assert.Equal(s.T(), 300.0, s.balance(models.MethodUPI), "other method untouched")
	assert.Equal(s.T(), 1, expense.Sem, "stamped with active semester")

	expenses, err := s.expenseSvc.GetAllExpenses(s.user.ID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), expenses, 1)
}

func (s *ExpenseServiceTestSuite) TestAddInsufficientBalanceRejected() {
	_, err := s.expenseSvc.AddExpense(s.user.ID, 301, "Concert tickets", models.CategoryEntertainment, models.MethodUPI)
	apiErr := s.requireAPIError(err, http.StatusBadRequest)
	assert.Equal(s.T(), "Insufficient balance", apiErr.Message)

	assert.Equal(s.T(), 300.0, s.balance(models.MethodUPI), "balance unchanged")
	expenses, err := s.expenseSvc.GetAllExpenses(s.user.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), expenses, "no row created")
}

func (s *ExpenseServiceTestSuite) TestAddValidation() {
	_, err := s.expenseSvc.AddExpense(s.user.ID, 0, "Lunch", models.CategoryFood, models.MethodCash)
	s.requireAPIError(err, http.StatusBadRequest)

	_, err = s.expenseSvc.AddExpense(s.user.ID, 10, "ab", models.CategoryFood, models.MethodCash)
	apiErr := s.requireAPIError(err, http.StatusBadRequest)
	assert.Equal(s.T(), "Description must be at least 3 characters long", apiErr.Message)

	_, err = s.expenseSvc.AddExpense(s.user.ID, 10, "Lunch", "Rent", models.MethodCash)
	s.requireAPIError(err, http.StatusBadRequest)

	_, err = s.expenseSvc.AddExpense(s.user.ID, 10, "Lunch", models.CategoryFood, "Card")
	s.requireAPIError(err, http.StatusBadRequest)
}

func (s *ExpenseServiceTestSuite) TestDeleteRestoresBalance() {
	expense, err := s.expenseSvc.AddExpense(s.user.ID, 80, "Bus pass", models.CategoryTransportation, models.MethodCash)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 420.0, s.balance(models.MethodCash))

	require.NoError(s.T(), s.expenseSvc.DeleteExpense(s.user.ID, expense.ID))
	assert.Equal(s.T(), 500.0, s.balance(models.MethodCash))

	expenses, err := s.expenseSvc.GetAllExpenses(s.user.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), expenses)

	// Deleting twice is impossible.
	err = s.expenseSvc.DeleteExpense(s.user.ID, expense.ID)
	s.requireAPIError(err, http.StatusNotFound)
	assert.Equal(s.T(), 500.0, s.balance(models.MethodCash), "second delete must not credit again")
}

// The full lifecycle: 500 cash, add 100 -> 400, edit to 150 -> 350,
// delete -> 500.
func (s *ExpenseServiceTestSuite) TestAddEditDeleteScenario() {
	expense, err := s.expenseSvc.AddExpense(s.user.ID, 100, "Textbooks", models.CategoryStationary, models.MethodCash)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 400.0, s.balance(models.MethodCash))

	newAmount := 150.0
	_, err = s.expenseSvc.EditExpense(s.user.ID, expense.ID, EditExpenseInput{Amount: &newAmount})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 350.0, s.balance(models.MethodCash))

	require.NoError(s.T(), s.expenseSvc.DeleteExpense(s.user.ID, expense.ID))
	assert.Equal(s.T(), 500.0, s.balance(models.MethodCash))
}

func (s *ExpenseServiceTestSuite) TestEditNonAmountFieldLeavesBalance() {
	expense, err := s.expenseSvc.AddExpense(s.user.ID, 50, "Movie", models.CategoryEntertainment, models.MethodUPI)
	require.NoError(s.T(), err)

	desc := "Movie night"
	category := models.CategoryOther
	updated, err := s.expenseSvc.EditExpense(s.user.ID, expense.ID, EditExpenseInput{
		Description: &desc,
		Category:    &category,
	})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), "Movie night", updated.Description)
	assert.Equal(s.T(), models.CategoryOther, updated.Category)
	assert.Equal(s.T(), 250.0, s.balance(models.MethodUPI), "balance unchanged by non-amount edit")
}

// Changing amount and payment method together settles the delta against the
// method the expense had before the edit.
func (s *ExpenseServiceTestSuite) TestEditSettlesDeltaOnOldMethod() {
	expense, err := s.expenseSvc.AddExpense(s.user.ID, 100, "Stationery run", models.CategoryStationary, models.MethodCash)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 400.0, s.balance(models.MethodCash))

	newAmount := 120.0
	newMethod := models.MethodUPI
	updated, err := s.expenseSvc.EditExpense(s.user.ID, expense.ID, EditExpenseInput{
		Amount:        &newAmount,
		PaymentMethod: &newMethod,
	})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), models.MethodUPI, updated.PaymentMethod)
	assert.Equal(s.T(), 380.0, s.balance(models.MethodCash), "delta lands on the pre-edit method")
	assert.Equal(s.T(), 300.0, s.balance(models.MethodUPI), "new method's balance untouched")
}

func (s *ExpenseServiceTestSuite) TestEditValidation() {
	expense, err := s.expenseSvc.AddExpense(s.user.ID, 40, "Snacks", models.CategoryFood, models.MethodCash)
	require.NoError(s.T(), err)

	_, err = s.expenseSvc.EditExpense(s.user.ID, expense.ID, EditExpenseInput{})
	apiErr := s.requireAPIError(err, http.StatusBadRequest)
	assert.Equal(s.T(), "At least one field must be provided to update the expense", apiErr.Message)

	bad := -5.0
	_, err = s.expenseSvc.EditExpense(s.user.ID, expense.ID, EditExpenseInput{Amount: &bad})
	s.requireAPIError(err, http.StatusBadRequest)

	short := "ab"
	_, err = s.expenseSvc.EditExpense(s.user.ID, expense.ID, EditExpenseInput{Description: &short})
	s.requireAPIError(err, http.StatusBadRequest)

	_, err = s.expenseSvc.EditExpense(s.user.ID, "missing-id", EditExpenseInput{Amount: &bad})
	s.requireAPIError(err, http.StatusBadRequest) // amount validated before lookup

	amount := 10.0
	_, err = s.expenseSvc.EditExpense(s.user.ID, "missing-id", EditExpenseInput{Amount: &amount})
	s.requireAPIError(err, http.StatusNotFound)
}

func (s *ExpenseServiceTestSuite) TestNonOwnerCannotMutate() {
	expense, err := s.expenseSvc.AddExpense(s.user.ID, 60, "Headphones", models.CategoryShopping, models.MethodUPI)
	require.NoError(s.T(), err)

	other, err := s.userSvc.CreateUser(
		models.FullName{FirstName: "Ravi", LastName: "Kumar"},
		"ravi_k", "ravi@example.com", "password123")
	require.NoError(s.T(), err)

	amount := 10.0
	_, err = s.expenseSvc.EditExpense(other.ID, expense.ID, EditExpenseInput{Amount: &amount})
	apiErr := s.requireAPIError(err, http.StatusForbidden)
	assert.Equal(s.T(), "Only the owner can update the expense", apiErr.Message)

	err = s.expenseSvc.DeleteExpense(other.ID, expense.ID)
	s.requireAPIError(err, http.StatusForbidden)

	// No mutation happened.
	assert.Equal(s.T(), 240.0, s.balance(models.MethodUPI))
	expenses, err := s.expenseSvc.GetAllExpenses(s.user.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), expenses, 1)
	assert.Equal(s.T(), 60.0, expenses[0].Amount)
}

func (s *ExpenseServiceTestSuite) TestPastSemesterEditRejected() {
	expense, err := s.expenseSvc.AddExpense(s.user.ID, 30, "Canteen", models.CategoryFood, models.MethodCash)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.userSvc.SetActiveSem(s.user.ID, 2))

	amount := 45.0
	_, err = s.expenseSvc.EditExpense(s.user.ID, expense.ID, EditExpenseInput{Amount: &amount})
	apiErr := s.requireAPIError(err, http.StatusUnauthorized)
	assert.Equal(s.T(), "Past Sem expenses are not allowed to update", apiErr.Message)
	assert.Equal(s.T(), 470.0, s.balance(models.MethodCash), "no mutation on rejected edit")
}

func (s *ExpenseServiceTestSuite) TestSpendInfoEmpty() {
	info, err := s.expenseSvc.GetSpendInfo(s.user.ID)
	require.NoError(s.T(), err)

	assert.Empty(s.T(), info.SpentInfo)
	assert.Equal(s.T(), 500.0, info.CurrentInfo.Cash.Amount)
	assert.Equal(s.T(), 300.0, info.CurrentInfo.UPI.Amount)
}

func (s *ExpenseServiceTestSuite) TestSpendInfoAggregates() {
	_, err := s.expenseSvc.AddExpense(s.user.ID, 100, "Groceries", models.CategoryFood, models.MethodCash)
	require.NoError(s.T(), err)
	_, err = s.expenseSvc.AddExpense(s.user.ID, 40, "Auto fare", models.CategoryTransportation, models.MethodCash)
	require.NoError(s.T(), err)
	latest, err := s.expenseSvc.AddExpense(s.user.ID, 25, "Recharge", models.CategoryOther, models.MethodUPI)
	require.NoError(s.T(), err)

	info, err := s.expenseSvc.GetSpendInfo(s.user.ID)
	require.NoError(s.T(), err)

	require.Contains(s.T(), info.SpentInfo, "cash")
	require.Contains(s.T(), info.SpentInfo, "upi")
	assert.Equal(s.T(), 140.0, info.SpentInfo["cash"].TotalAmountSpent)
	assert.Equal(s.T(), 25.0, info.SpentInfo["upi"].TotalAmountSpent)
	assert.WithinDuration(s.T(), latest.CreatedAt, info.SpentInfo["upi"].LastSpentDate, time.Second)
	assert.Equal(s.T(), 360.0, info.CurrentInfo.Cash.Amount)
	assert.Equal(s.T(), 275.0, info.CurrentInfo.UPI.Amount)
}

// Aggregation is scoped to the active semester.
func (s *ExpenseServiceTestSuite) TestSpendInfoScopedToActiveSem() {
	_, err := s.expenseSvc.AddExpense(s.user.ID, 100, "Groceries", models.CategoryFood, models.MethodCash)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.userSvc.SetActiveSem(s.user.ID, 2))

	info, err := s.expenseSvc.GetSpendInfo(s.user.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), info.SpentInfo, "previous semester's spend excluded")
}

func (s *ExpenseServiceTestSuite) TestGetExpensesBySem() {
	_, err := s.expenseSvc.AddExpense(s.user.ID, 100, "Groceries", models.CategoryFood, models.MethodCash)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.userSvc.SetActiveSem(s.user.ID, 2))
	_, err = s.expenseSvc.AddExpense(s.user.ID, 20, "Print-outs", models.CategoryStationary, models.MethodCash)
	require.NoError(s.T(), err)

	semOne, err := s.expenseSvc.GetExpensesBySem(s.user.ID, 1)
	require.NoError(s.T(), err)
	require.Len(s.T(), semOne, 1)
	assert.Equal(s.T(), 100.0, semOne[0].Amount)

	semTwo, err := s.expenseSvc.GetExpensesBySem(s.user.ID, 2)
	require.NoError(s.T(), err)
	assert.Len(s.T(), semTwo, 1)

	_, err = s.expenseSvc.GetExpensesBySem(s.user.ID, 3)
	apiErr := s.requireAPIError(err, http.StatusBadRequest)
	assert.Equal(s.T(), "Requested sem is invalid", apiErr.Message)
}

func TestExpenseServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ExpenseServiceTestSuite))
}
