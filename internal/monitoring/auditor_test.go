package monitoring

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/arnvgh/semspend-be/internal/database"
	"github.com/arnvgh/semspend-be/internal/models"
	"github.com/arnvgh/semspend-be/internal/services"
)

type AuditorTestSuite struct {
	suite.Suite
	db      *sql.DB
	auditor *Auditor
	userID  string
}

func (s *AuditorTestSuite) SetupTest() {
	db, err := database.New(":memory:")
	require.NoError(s.T(), err)
	db.SetMaxOpenConns(1)
	require.NoError(s.T(), database.Migrate(db))
	s.db = db

	eventSvc := services.NewEventService(db)
	userSvc := services.NewUserService(db, eventSvc, nil)
	expenseSvc := services.NewExpenseService(db, eventSvc, nil)

	user, err := userSvc.CreateUser(
		models.FullName{FirstName: "Asha", LastName: "Verma"},
		"asha_v", "asha@example.com", "supersecret")
	require.NoError(s.T(), err)
	s.userID = user.ID

	_, err = userSvc.UpdateBalance(user.ID, 500, 300)
	require.NoError(s.T(), err)
	_, err = expenseSvc.AddExpense(user.ID, 120, "Groceries", models.CategoryFood, models.MethodCash)
	require.NoError(s.T(), err)
	_, err = expenseSvc.AddExpense(user.ID, 60, "Recharge", models.CategoryOther, models.MethodUPI)
	require.NoError(s.T(), err)

	s.auditor, err = NewAuditor(db, eventSvc, "0 3 * * *")
	require.NoError(s.T(), err)
}

func (s *AuditorTestSuite) eventTypes() []string {
	rows, err := s.db.Query("SELECT type FROM events ORDER BY created_at")
	require.NoError(s.T(), err)
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		require.NoError(s.T(), rows.Scan(&t))
		types = append(types, t)
	}
	return types
}

func (s *AuditorTestSuite) TestCleanLedgerPasses() {
	require.NoError(s.T(), s.auditor.Audit())

	types := s.eventTypes()
	assert.Contains(s.T(), types, "audit.ok")
	assert.NotContains(s.T(), types, "audit.drift")
}

func (s *AuditorTestSuite) TestDriftDetected() {
	// Corrupt the stored balance behind the ledger's back.
	_, err := s.db.Exec("UPDATE users SET balance_cash_amount = balance_cash_amount - 50 WHERE id = ?", s.userID)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.auditor.Audit())

	types := s.eventTypes()
	assert.Contains(s.T(), types, "audit.drift")
	assert.NotContains(s.T(), types, "audit.ok")
}

// Recording drift must work with the pool capped at one connection; every
// drifted user gets its own event.
func (s *AuditorTestSuite) TestDriftRecordedPerUser() {
	eventSvc := services.NewEventService(s.db)
	userSvc := services.NewUserService(s.db, eventSvc, nil)

	other, err := userSvc.CreateUser(
		models.FullName{FirstName: "Ravi", LastName: "Kumar"},
		"ravi_k", "ravi@example.com", "password123")
	require.NoError(s.T(), err)
	_, err = userSvc.UpdateBalance(other.ID, 200, 0)
	require.NoError(s.T(), err)

	_, err = s.db.Exec("UPDATE users SET balance_cash_amount = balance_cash_amount + 25")
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.auditor.Audit())

	var driftEvents int
	require.NoError(s.T(), s.db.QueryRow(
		"SELECT COUNT(*) FROM events WHERE type = 'audit.drift'").Scan(&driftEvents))
	assert.Equal(s.T(), 2, driftEvents)
}

func (s *AuditorTestSuite) TestRejectsInvalidSchedule() {
	_, err := NewAuditor(s.db, nil, "not a cron expr")
	assert.Error(s.T(), err)
}

func TestAuditorTestSuite(t *testing.T) {
	suite.Run(t, new(AuditorTestSuite))
}
