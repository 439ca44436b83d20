package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/facility-desk/internal/api/http/handlers"
	"github.com/spec-kit/facility-desk/internal/auth"
	"github.com/spec-kit/facility-desk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Requests       *handlers.RequestsHandler
	Offices        *handlers.OfficesHandler
	Notifications  *handlers.NotificationsHandler
	Files          *handlers.FilesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Static request paths are registered
// before /api/requests/:userId so they are not captured by it.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	health := app.Group("/health")
	health.Get("/live", cfg.Health.Live)
	health.Get("/ready", cfg.Health.Ready)
	health.Get("/metrics", cfg.Health.Metrics)

	api := app.Group("/api")
	api.Post("/auth/login", cfg.Auth.Login)
	// Served without a token; keys are unguessable.
	api.Get("/files/*", cfg.Files.Serve)

	protected := api.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())

	protected.Get("/user/profile/:id", cfg.Users.Profile)
	protected.Post("/user/avatar/:id", cfg.Users.UploadAvatar)
	protected.Get("/users", cfg.Users.List)

	protected.Get("/requests/archive", auth.RequireRole(domain.RoleSupervisor, domain.RoleManager), cfg.Requests.Archive)
	protected.Post("/requests/create", cfg.Requests.Create)
	protected.Get("/requests/detail/:id", cfg.Requests.Detail)
	protected.Patch("/requests/:id/status", cfg.Requests.ChangeStatus)
	protected.Patch("/requests/:id/update", cfg.Requests.Update)
	protected.Post("/requests/:id/attachments", cfg.Requests.AddAttachments)
	protected.Get("/requests/:userId", cfg.Requests.List)

	protected.Get("/offices/filters", cfg.Offices.Filters)
	protected.Get("/offices/filters/resolve", cfg.Offices.Resolve)

	protected.Get("/notifications/:userId/unread-count", cfg.Notifications.UnreadCount)
	protected.Get("/notifications/:userId", cfg.Notifications.Feed)
	protected.Patch("/notifications/:id/read", cfg.Notifications.MarkRead)
}
