package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/mwhitfield/authgate/internal/auth"
	"github.com/mwhitfield/authgate/internal/handlers"
	"github.com/mwhitfield/authgate/internal/middleware"
	"github.com/mwhitfield/authgate/internal/models"
)

// RegisterRoutes registers all application routes. The same handler set is
// mounted twice: once at the central root and once under /tenants/{tenantID},
// so a tenant login produces tokens bound to that tenant and nothing else.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	tokenManager *auth.TokenManager,
	apiLimit middleware.APIRateLimitConfig,
) {
	quota := middleware.APIRateLimit(apiLimit)

	// Central context
	router.Group(func(r chi.Router) {
		r.Use(quota)

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/refresh", authHandler.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(tokenManager, models.CentralContext()))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)
			r.With(auth.RequireAbility(models.AbilityUsersWrite)).Post("/auth/change-password", authHandler.ChangePassword)
		})
	})

	// Tenant context. The tenant id in the URL scopes every lookup and every
	// issued token; the same email may exist independently per tenant.
	router.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Use(quota)

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/refresh", authHandler.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(auth.TenantMiddleware(tokenManager))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)
			r.With(auth.RequireAbility(models.AbilityUsersWrite)).Post("/auth/change-password", authHandler.ChangePassword)
		})
	})
}
