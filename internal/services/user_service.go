package services

import (
	"database/sql"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/arnvgh/semspend-be/internal/apierr"
	"github.com/arnvgh/semspend-be/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Notifier pushes refresh notifications to a user's connected clients.
type Notifier interface {
	NotifyUser(userID, action string, payload interface{})
}

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(id string) (models.User, error)
	CreateUser(fullName models.FullName, username, email, password string) (models.User, error)
	AuthenticateUser(identifier, password string) (models.User, error)
	IsUsernameTaken(username string) (bool, error)
	ValidateUsername(username string) []string
	UpdateBalance(userID string, cash, upi float64) (models.Balance, error)
	SetActiveSem(userID string, sem int) error
}

// UserService provides business logic for accounts, balances and semesters.
type UserService struct {
	db       *sql.DB
	eventSvc EventServiceProvider
	notifier Notifier
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB, eventSvc EventServiceProvider, notifier Notifier) *UserService {
	return &UserService{db: db, eventSvc: eventSvc, notifier: notifier}
}

const userColumns = `id, first_name, last_name, username, email, password_hash,
	balance_cash_amount, balance_cash_updated_at, balance_upi_amount, balance_upi_updated_at,
	deposited_cash, deposited_upi, active_sem, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.FullName.FirstName, &user.FullName.LastName, &user.Username,
		&user.Email, &user.PasswordHash,
		&user.Balance.Cash.Amount, &user.Balance.Cash.UpdatedAt,
		&user.Balance.UPI.Amount, &user.Balance.UPI.UpdatedAt,
		&user.DepositedCash, &user.DepositedUPI,
		&user.ActiveSem, &user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(id string) (models.User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.User{}, apierr.New(http.StatusNotFound, "User not found")
		}
		return models.User{}, err
	}
	return user, nil
}

// ValidateUsername returns the list of rule violations for a username, empty
// when it is acceptable.
func (s *UserService) ValidateUsername(username string) []string {
	var errs []string
	if len(username) < 3 {
		errs = append(errs, "Username must be at least 3 characters long")
	}
	if !usernamePattern.MatchString(username) {
		errs = append(errs, "Username must contain only letters, numbers and underscores")
	}
	return errs
}

// IsUsernameTaken reports whether a username is already registered.
func (s *UserService) IsUsernameTaken(username string) (bool, error) {
	var id string
	err := s.db.QueryRow("SELECT id FROM users WHERE username = ?", username).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateUser registers a new account, hashing the password.
func (s *UserService) CreateUser(fullName models.FullName, username, email, password string) (models.User, error) {
	for _, field := range []string{fullName.FirstName, fullName.LastName, username, email, password} {
		if strings.TrimSpace(field) == "" {
			return models.User{}, apierr.New(http.StatusBadRequest, "All fields are required")
		}
	}
	if len(fullName.FirstName) < 3 {
		return models.User{}, apierr.New(http.StatusBadRequest, "First name must be at least 3 characters long")
	}
	if len(fullName.LastName) < 3 {
		return models.User{}, apierr.New(http.StatusBadRequest, "Last name must be at least 3 characters long")
	}
	if errs := s.ValidateUsername(username); len(errs) > 0 {
		return models.User{}, apierr.New(http.StatusBadRequest, "Invalid username", errs...)
	}
	if !strings.Contains(email, "@") {
		return models.User{}, apierr.New(http.StatusBadRequest, "Invalid email")
	}
	if len(password) < 8 {
		return models.User{}, apierr.New(http.StatusBadRequest, "Password must be at least 8 characters long")
	}

	var existing string
	err := s.db.QueryRow("SELECT id FROM users WHERE username = ? OR email = ?", username, email).Scan(&existing)
	if err == nil {
		return models.User{}, apierr.New(http.StatusBadRequest, "User already exists")
	}
	if err != sql.ErrNoRows {
		return models.User{}, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.db.Exec(`
		INSERT INTO users (id, first_name, last_name, username, email, password_hash,
			balance_cash_updated_at, balance_upi_updated_at, active_sem, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, fullName.FirstName, fullName.LastName, username, email, string(hashedPassword),
		now, now, now, now)
	if err != nil {
		return models.User{}, err
	}

	log.Info().Str("user_id", id).Str("username", username).Msg("User registered")

	return s.GetUserByID(id)
}

// AuthenticateUser verifies credentials; the identifier may be a username or
// an email address.
func (s *UserService) AuthenticateUser(identifier, password string) (models.User, error) {
	if strings.TrimSpace(identifier) == "" || strings.TrimSpace(password) == "" {
		return models.User{}, apierr.New(http.StatusBadRequest, "All fields are required")
	}

	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE username = ? OR email = ?", identifier, identifier)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.User{}, apierr.New(http.StatusNotFound, "User not found")
		}
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, apierr.New(http.StatusBadRequest, "Invalid credentials")
	}

	user.PasswordHash = ""
	return user, nil
}

// UpdateBalance tops up one or both payment-method balances. Amounts must not
// be negative and at least one must be positive.
func (s *UserService) UpdateBalance(userID string, cash, upi float64) (models.Balance, error) {
	if cash < 0 || upi < 0 {
		return models.Balance{}, apierr.New(http.StatusBadRequest, "Amounts must be positive numbers")
	}
	if cash == 0 && upi == 0 {
		return models.Balance{}, apierr.New(http.StatusBadRequest, "At least one field must be provided to update the balance")
	}

	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return models.Balance{}, err
	}
	defer tx.Rollback()

	if cash > 0 {
		res, err := tx.Exec(`
			UPDATE users SET balance_cash_amount = balance_cash_amount + ?,
				deposited_cash = deposited_cash + ?, balance_cash_updated_at = ?, updated_at = ?
			WHERE id = ?`, cash, cash, now, now, userID)
		if err != nil {
			return models.Balance{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.Balance{}, apierr.New(http.StatusNotFound, "User not found")
		}
	}
	if upi > 0 {
		res, err := tx.Exec(`
			UPDATE users SET balance_upi_amount = balance_upi_amount + ?,
				deposited_upi = deposited_upi + ?, balance_upi_updated_at = ?, updated_at = ?
			WHERE id = ?`, upi, upi, now, now, userID)
		if err != nil {
			return models.Balance{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.Balance{}, apierr.New(http.StatusNotFound, "User not found")
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Balance{}, err
	}

	user, err := s.GetUserByID(userID)
	if err != nil {
		return models.Balance{}, err
	}

	if s.eventSvc != nil {
		if err := s.eventSvc.CreateEvent("balance.update", "info",
			fmt.Sprintf("Balance topped up (cash %.2f, upi %.2f)", cash, upi), &userID); err != nil {
			log.Warn().Err(err).Msg("Failed to record balance update event")
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyUser(userID, "balance_updated", user.Balance)
	}

	return user.Balance, nil
}

// SetActiveSem switches the user's active semester.
func (s *UserService) SetActiveSem(userID string, sem int) error {
	res, err := s.db.Exec("UPDATE users SET active_sem = ?, updated_at = ? WHERE id = ?",
		sem, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.New(http.StatusUnauthorized, "User not found")
	}

	if s.eventSvc != nil {
		if err := s.eventSvc.CreateEvent("sem.update", "info",
			fmt.Sprintf("Active semester set to %d", sem), &userID); err != nil {
			log.Warn().Err(err).Msg("Failed to record semester update event")
		}
	}
	return nil
}
