package router

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	hrest "school-notification-service/internal/handler/http"
	wshandler "school-notification-service/internal/handler/ws"
	"school-notification-service/internal/domain"
	"school-notification-service/internal/middleware"
)

// SetupRoutes configures the HTTP routes for the notification service
func SetupRoutes(
	r chi.Router,
	h *hrest.NotificationHandler,
	socket *wshandler.SocketHandler,
	verifier *middleware.TokenVerifier,
	rdb *redis.Client,
) chi.Router {
	// ---- Global Middleware ----
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
			"ngrok-skip-browser-warning",
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RateLimiter(rdb, 100, time.Minute, 10*time.Minute, "global"))

	staffOnly := middleware.RequireRoles(
		string(domain.RoleSuperAdmin),
		string(domain.RoleAdmin),
		string(domain.RoleTeacher),
		string(domain.RoleAccountant),
	)
	adminOnly := middleware.RequireRoles(
		string(domain.RoleSuperAdmin),
		string(domain.RoleAdmin),
	)

	// ============================================================
	// Notification Routes (all require auth)
	// ============================================================
	r.Route("/api/v1/notifications", func(r chi.Router) {
		// WebSocket endpoint authenticates during the handshake
		r.Get("/ws", socket.HandleConnection)

		r.Group(func(r chi.Router) {
			r.Use(verifier.AuthMiddleware)

			// Recipient surface
			r.Get("/my-notifications", h.MyNotifications)
			r.Put("/{deliveryId}/read", h.MarkAsRead)
			r.Get("/templates", h.ListTemplates)
			r.Post("/test", h.SendTest)

			// Dispatch surface
			r.With(staffOnly).Post("/", h.CreateNotification)
			r.With(adminOnly).Post("/broadcast", h.Broadcast)
			r.With(adminOnly).Delete("/{notificationId}", h.CancelNotification)

			// Operations surface
			r.With(adminOnly).Post("/{deliveryId}/retry", h.RetryDelivery)
			r.With(adminOnly).Get("/stats", h.Stats)
			r.With(adminOnly).Get("/queue/stats", h.QueueStats)
		})
	})
	return r
}
