package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/arnvgh/semspend-be/internal/apierr"
	"github.com/arnvgh/semspend-be/internal/auth"
	"github.com/arnvgh/semspend-be/internal/models"
	"github.com/arnvgh/semspend-be/internal/services"
)

// UserHandler handles HTTP requests for accounts, balances and semesters.
type UserHandler struct {
	userSvc    services.UserServiceProvider
	expenseSvc services.ExpenseServiceProvider
	authSvc    *auth.Service
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userSvc services.UserServiceProvider, expenseSvc services.ExpenseServiceProvider, authSvc *auth.Service) *UserHandler {
	return &UserHandler{userSvc: userSvc, expenseSvc: expenseSvc, authSvc: authSvc}
}

// SignUpPayload defines the structure for registration requests.
type SignUpPayload struct {
	FullName models.FullName `json:"fullName"`
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
}

// SignInPayload defines the structure for login requests. The identifier may
// be a username or an email.
type SignInPayload struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// SignUp handles new user registration.
func (h *UserHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var payload SignUpPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierr.New(http.StatusBadRequest, "Invalid request body"))
		return
	}

	user, err := h.userSvc.CreateUser(payload.FullName, payload.Username, payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User created successfully", user)
}

// SignIn handles user authentication and JWT generation.
func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var payload SignInPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierr.New(http.StatusBadRequest, "Invalid request body"))
		return
	}

	user, err := h.userSvc.AuthenticateUser(payload.Identifier, payload.Password)
	if err != nil {
		log.Warn().Str("identifier", payload.Identifier).Msg("Failed authentication attempt")
		writeError(w, err)
		return
	}

	token, err := h.authSvc.GenerateJWT(user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate JWT")
		writeError(w, err)
		return
	}

	// Set Secure flag based on environment.
	isProd := os.Getenv("APP_ENV") == "production"

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Expires:  time.Now().Add(24 * time.Hour),
		HttpOnly: true,
		Secure:   isProd,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})

	writeSuccess(w, http.StatusOK, "Signed in successfully", map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// CheckUsernameUnique validates a candidate username and reports whether it
// is still free.
func (h *UserHandler) CheckUsernameUnique(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")

	if errs := h.userSvc.ValidateUsername(username); len(errs) > 0 {
		writeError(w, apierr.New(http.StatusBadRequest, "Invalid username", errs...))
		return
	}

	taken, err := h.userSvc.IsUsernameTaken(username)
	if err != nil {
		writeError(w, err)
		return
	}
	if taken {
		writeError(w, apierr.New(http.StatusBadRequest, "Username already exists"))
		return
	}

	writeSuccess(w, http.StatusOK, "Username is unique", map[string]interface{}{})
}

// GetMe retrieves the currently authenticated user from the token.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierr.New(http.StatusUnauthorized, "Unauthorized request"))
		return
	}

	user, err := h.userSvc.GetUserByID(claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User fetched successfully", user)
}

// UpdateBalance tops up one or both payment-method balances.
func (h *UserHandler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierr.New(http.StatusUnauthorized, "Unauthorized request"))
		return
	}

	var payload struct {
		Cash float64 `json:"cash"`
		UPI  float64 `json:"upi"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierr.New(http.StatusBadRequest, "Invalid request body"))
		return
	}

	balance, err := h.userSvc.UpdateBalance(claims.UserID, payload.Cash, payload.UPI)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Balance updated successfully", map[string]interface{}{
		"updatedBalance": balance,
	})
}

// SetSem switches the caller's active semester.
func (h *UserHandler) SetSem(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierr.New(http.StatusUnauthorized, "Unauthorized request"))
		return
	}

	var payload struct {
		Sem int `json:"sem"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierr.New(http.StatusBadRequest, "Invalid request body"))
		return
	}

	if payload.Sem == 0 {
		writeError(w, apierr.New(http.StatusNotFound, "New sem not found"))
		return
	}

	if err := h.userSvc.SetActiveSem(claims.UserID, payload.Sem); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Semester updated", nil)
}

// GetAllExpenses returns every expense of the caller, newest first.
func (h *UserHandler) GetAllExpenses(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierr.New(http.StatusUnauthorized, "Unauthorized request"))
		return
	}

	expenses, err := h.expenseSvc.GetAllExpenses(claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Expenses fetched successfully", map[string]interface{}{
		"expenses": expenses,
	})
}

// GetExpensesBySem returns the caller's expenses for one semester.
func (h *UserHandler) GetExpensesBySem(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierr.New(http.StatusUnauthorized, "Unauthorized request"))
		return
	}

	sem, err := strconv.Atoi(chi.URLParam(r, "sem"))
	if err != nil {
		writeError(w, apierr.New(http.StatusBadRequest, "Requested sem is invalid"))
		return
	}

	expenses, err := h.expenseSvc.GetExpensesBySem(claims.UserID, sem)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Expenses fetched successfully", map[string]interface{}{
		"expenses": expenses,
	})
}
