package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/arnvgh/semspend-be/internal/api/handlers"
	"github.com/arnvgh/semspend-be/internal/auth"
	"github.com/arnvgh/semspend-be/internal/services"
	"github.com/arnvgh/semspend-be/internal/websocket"
)

// NewRouter creates and configures a new Chi router.
func NewRouter(
	allowedOrigins []string,
	authSvc *auth.Service,
	hub *websocket.Hub,
	userSvc services.UserServiceProvider,
	expenseSvc services.ExpenseServiceProvider,
	eventSvc services.EventServiceProvider,
	stats handlers.StatsProvider,
) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userSvc, expenseSvc, authSvc)
	expenseHandler := handlers.NewExpenseHandler(expenseSvc)
	eventHandler := handlers.NewEventHandler(eventSvc)
	statusHandler := handlers.NewStatusHandler(stats)
	wsHandler := handlers.NewWebSocketHandler(hub)

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/sign-up", userHandler.SignUp)
		r.Post("/sign-in", userHandler.SignIn)
		r.Get("/check-username-unique", userHandler.CheckUsernameUnique)

		// Everything else requires a session token
		r.Group(func(r chi.Router) {
			r.Use(authSvc.Middleware())

			r.Get("/ws", wsHandler.Serve)
			r.Get("/status", statusHandler.Get)

			r.Route("/expense", func(r chi.Router) {
				r.Post("/add", expenseHandler.Add)
				r.Patch("/edit", expenseHandler.Edit)
				r.Delete("/delete", expenseHandler.Delete)
				r.Get("/get-info", expenseHandler.GetInfo)
			})

			r.Route("/user", func(r chi.Router) {
				r.Get("/me", userHandler.GetMe)
				r.Post("/sem", userHandler.SetSem)
				r.Patch("/update-balance", userHandler.UpdateBalance)
				r.Get("/get-all-expenses", userHandler.GetAllExpenses)
				r.Get("/get-all-expenses/sem/{sem}", userHandler.GetExpensesBySem)
				r.Get("/activity", eventHandler.GetRecent)
			})
		})
	})

	return r
}
