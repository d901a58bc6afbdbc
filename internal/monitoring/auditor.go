package monitoring

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/arnvgh/semspend-be/internal/models"
	"github.com/arnvgh/semspend-be/internal/services"
)

// driftTolerance absorbs float rounding from REAL arithmetic.
const driftTolerance = 1e-6

// Auditor periodically verifies the ledger invariant: for every user and
// payment method, deposits minus the sum of live expenses must equal the
// stored balance. Mutations maintain the invariant by convention; the auditor
// is the check that the convention held.
type Auditor struct {
	db       *sql.DB
	eventSvc services.EventServiceProvider
	schedule cron.Schedule
	nextRun  time.Time
	ticker   *time.Ticker
	done     chan bool
}

// NewAuditor creates an auditor for the given standard cron expression.
func NewAuditor(db *sql.DB, eventSvc services.EventServiceProvider, cronExpr string) (*Auditor, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid audit schedule: %w", err)
	}
	return &Auditor{
		db:       db,
		eventSvc: eventSvc,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now()),
		done:     make(chan bool),
	}, nil
}

// Run starts the auditor's ticking loop.
func (a *Auditor) Run() {
	log.Info().Time("next_run", a.nextRun).Msg("Starting ledger auditor...")
	a.ticker = time.NewTicker(1 * time.Minute)
	defer a.ticker.Stop()

	for {
		select {
		case <-a.done:
			log.Info().Msg("Stopping ledger auditor.")
			return
		case now := <-a.ticker.C:
			if now.Before(a.nextRun) {
				continue
			}
			if err := a.Audit(); err != nil {
				log.Error().Err(err).Msg("Ledger audit failed")
			}
			a.nextRun = a.schedule.Next(now)
		}
	}
}

// Stop halts the auditor.
func (a *Auditor) Stop() {
	a.done <- true
}

// Audit checks every user's balances against the ledger and records drift.
// It returns the first query error; per-user drift is reported, not returned.
func (a *Auditor) Audit() error {
	rows, err := a.db.Query(`
		SELECT u.id, u.username,
			u.deposited_cash, u.deposited_upi,
			u.balance_cash_amount, u.balance_upi_amount,
			COALESCE(SUM(CASE WHEN e.payment_method = ? THEN e.amount END), 0.0),
			COALESCE(SUM(CASE WHEN e.payment_method = ? THEN e.amount END), 0.0)
		FROM users u
		LEFT JOIN expenses e ON e.user_id = u.id
		GROUP BY u.id`, models.MethodCash, models.MethodUPI)
	if err != nil {
		return fmt.Errorf("query ledger totals: %w", err)
	}
	defer rows.Close()

	// Drift events are written after the cursor is drained; an INSERT while
	// the read cursor still holds its connection would block or SQLITE_BUSY.
	type driftRecord struct {
		userID    string
		cashDrift float64
		upiDrift  float64
	}

	var checked int
	var drifts []driftRecord
	for rows.Next() {
		var (
			id, username                string
			depositedCash, depositedUPI float64
			balanceCash, balanceUPI     float64
			spentCash, spentUPI         float64
		)
		if err := rows.Scan(&id, &username, &depositedCash, &depositedUPI,
			&balanceCash, &balanceUPI, &spentCash, &spentUPI); err != nil {
			return fmt.Errorf("scan ledger row: %w", err)
		}

		checked++
		cashDrift := (depositedCash - spentCash) - balanceCash
		upiDrift := (depositedUPI - spentUPI) - balanceUPI

		if math.Abs(cashDrift) > driftTolerance || math.Abs(upiDrift) > driftTolerance {
			log.Warn().Str("user_id", id).Str("username", username).
				Float64("cash_drift", cashDrift).Float64("upi_drift", upiDrift).
				Msg("Balance drifted from ledger")
			drifts = append(drifts, driftRecord{userID: id, cashDrift: cashDrift, upiDrift: upiDrift})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	if a.eventSvc != nil {
		for _, d := range drifts {
			msg := fmt.Sprintf("Balance drift detected (cash %+.2f, upi %+.2f)", d.cashDrift, d.upiDrift)
			if err := a.eventSvc.CreateEvent("audit.drift", "warn", msg, &d.userID); err != nil {
				log.Error().Err(err).Msg("Failed to record drift event")
			}
		}
	}

	drifted := len(drifts)
	log.Info().Int("users_checked", checked).Int("users_drifted", drifted).Msg("Ledger audit completed")
	if a.eventSvc != nil && drifted == 0 {
		if err := a.eventSvc.CreateEvent("audit.ok", "info",
			fmt.Sprintf("Ledger audit clean (%d users)", checked), nil); err != nil {
			log.Error().Err(err).Msg("Failed to record audit event")
		}
	}
	return nil
}
