package routes

import (
	"github.com/BradenHooton/bankauth/internal/auth"
	"github.com/BradenHooton/bankauth/internal/handlers"
	"github.com/BradenHooton/bankauth/internal/middleware"
	"github.com/BradenHooton/bankauth/internal/models"
	pkghttp "github.com/BradenHooton/bankauth/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	userHandler *handlers.UserHandler,
	authHandler *handlers.AuthHandler,
	tokenManager *auth.TokenManager,
	userRepo auth.UserRepository,
	ipResolver *pkghttp.ClientIPResolver,
	loginRateLimit middleware.RateLimitConfig,
) {
	// Public routes
	router.With(middleware.RateLimitByIP(loginRateLimit, ipResolver)).Post("/banking/login", authHandler.BankingLogin)
	router.With(middleware.RateLimitByIP(loginRateLimit, ipResolver)).Post("/users", userHandler.CreateUser)

	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		// Own account, or any account for admins
		r.Get("/users/{id}", userHandler.GetUser)
		r.Put("/users/{id}", userHandler.UpdateUser)
		r.Put("/users/{id}/password", userHandler.ChangePassword)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, models.RoleAdmin))
			r.Get("/users", userHandler.ListUsers)
			r.Delete("/users/{id}", userHandler.DeleteUser)

			r.Get("/admin/accounts/{username}/login-state", authHandler.LoginState)
			r.Post("/admin/accounts/{username}/unlock", authHandler.Unlock)
		})
	})
}
