// Package router registers the HTTP routes of the ticketing API.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/config"
	"github.com/iliyamo/ticket-inventory/internal/handler"
	"github.com/iliyamo/ticket-inventory/internal/middleware"
)

// Deps is what the routes need.  Redis may be nil, which disables rate
// limiting and the availability cache.
type Deps struct {
	Events    *handler.EventHandler
	Tickets   *handler.TicketHandler
	DB        handler.Pinger
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
	Logger    logrus.FieldLogger
}

// RegisterPublic registers routes that need no token: health checks and
// the cached availability view.
func RegisterPublic(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(d.DB))
	e.GET("/v1/events/:id/availability", d.Events.Availability,
		middleware.NewRedisCache(d.Cache, d.Redis, d.Logger))
}

// RegisterCustomer registers the routes any authenticated user may call.
// Writes go through the shared token bucket.
func RegisterCustomer(e *echo.Echo, d Deps) {
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger)
	g := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleCustomer, middleware.RoleStaff, middleware.RoleOrganizer),
	)
	g.POST("/events/:id/purchase", d.Events.Purchase, limit)
	g.POST("/events/:id/waitlist", d.Events.JoinWaitlist, limit)
	g.GET("/events/:id/discounts/:code", d.Events.ValidateDiscount, limit)

	g.POST("/tickets/:id/transfer", d.Tickets.Transfer, limit)
	g.POST("/tickets/:id/refund", d.Tickets.RequestRefund, limit)
	g.GET("/tickets/:id", d.Tickets.Get)
	g.GET("/my-tickets", d.Tickets.Mine)
}

// RegisterStaff registers venue entry.
func RegisterStaff(e *echo.Echo, d Deps) {
	g := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleStaff, middleware.RoleOrganizer),
	)
	g.POST("/checkin", d.Tickets.CheckIn)
}

// RegisterOrganizer registers event administration, refund handling and
// the analytics counters.
func RegisterOrganizer(e *echo.Echo, d Deps) {
	var rdb redis.Cmdable
	if d.Redis != nil {
		rdb = d.Redis
	}
	g := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleOrganizer),
	)
	g.POST("/events", d.Events.PublishEvent)
	g.POST("/events/:id/discounts", d.Events.CreateDiscount)
	g.POST("/events/:id/cancel", d.Tickets.CancelEvent)
	g.GET("/events/:id/waitlist", d.Events.ListWaitlist)
	g.POST("/events/:id/waitlist/promote", d.Events.PromoteNext)
	g.GET("/events/:id/stats", handler.EventStats(rdb, d.Logger))

	g.POST("/tickets/:id/refund/approve", d.Tickets.ApproveRefund)
	g.POST("/tickets/:id/refund/reject", d.Tickets.RejectRefund)
	g.POST("/tickets/:id/cancel", d.Tickets.Cancel)
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.RequestID(), middleware.RequestLogger(d.Logger), echomw.Recover())
	RegisterPublic(e, d)
	RegisterCustomer(e, d)
	RegisterStaff(e, d)
	RegisterOrganizer(e, d)
	return e
}
