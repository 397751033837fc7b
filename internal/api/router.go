/**
 * @description
 * This file sets up the HTTP router for the banking API. It defines the customer
 * and admin endpoints and applies the middleware chain: request IDs, access logs,
 * panic recovery, timeouts, CORS, bearer authentication and role checks.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: Router and standard middleware.
 * - github.com/go-chi/cors: CORS handling for the browser frontend.
 */
package api

import (
	"net/http"
	"time"

	"github.com/avsbank/banking-service/internal/auth"
	"github.com/avsbank/banking-service/internal/domain"
	"github.com/avsbank/banking-service/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions carries the cross-cutting settings of the router.
type RouterOptions struct {
	Tokens                  *auth.TokenIssuer
	Limiter                 middleware.Limiter
	LoginRateLimitPerMinute int
	AllowedOrigins          []string
	RequestTimeout          time.Duration
}

// NewRouter creates the banking API router.
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	loginLimit := func(next http.Handler) http.Handler { return next }
	if opts.Limiter != nil && opts.LoginRateLimitPerMinute > 0 {
		loginLimit = middleware.RateLimit(opts.Limiter, "login", middleware.Rule{Limit: opts.LoginRateLimitPerMinute, Window: time.Minute}, h.logger)
	}

	r.Post("/register", h.RegisterHandler)
	r.With(loginLimit).Post("/login", h.LoginHandler)

	// Customer routes.
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(opts.Tokens))
		r.Use(RequireRole(domain.RoleUser))

		r.Get("/profile", h.ProfileHandler)
		r.Post("/deposit", h.DepositHandler)
		r.Post("/withdraw", h.WithdrawHandler)
		r.Get("/transactions", h.TransactionsHandler)
		r.Post("/request-update", h.RequestUpdateHandler)
		r.Post("/request-kyc-update", h.RequestKYCHandler)
	})

	// Admin gateway.
	r.Route("/admin", func(r chi.Router) {
		r.With(loginLimit).Post("/login", h.AdminLoginHandler)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(opts.Tokens))
			r.Use(RequireRole(domain.RoleAdmin))
			r.Use(h.requireActiveAdmin)

			r.Get("/dashboard", h.DashboardHandler)
			r.Post("/create-user", h.CreateUserHandler)
			r.Get("/users", h.ListUsersHandler)
			r.Get("/users/{id}", h.GetUserHandler)
			r.Put("/users/{id}", h.UpdateUserHandler)
			r.Delete("/users/{id}", h.DeleteUserHandler)
			r.Get("/users/{id}/transactions", h.UserTransactionsHandler)

			r.Get("/update-requests", h.ListUpdateRequestsHandler)
			r.Post("/update-requests/{id}", h.ResolveUpdateRequestHandler)
			r.Get("/kyc-requests", h.ListKYCRequestsHandler)
			r.Post("/kyc-requests/{id}", h.ResolveKYCRequestHandler)
			r.Get("/kyc-requests/{id}/documents/{kind}", h.KYCDocumentHandler)
		})
	})

	return r
}
