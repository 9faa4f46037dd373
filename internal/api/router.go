package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"makequeue-backend/config"
	"makequeue-backend/internal/identity"
	"makequeue-backend/internal/mw"
	"makequeue-backend/internal/reserve"
	"makequeue-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, service *reserve.Service, directory identity.Directory) *gin.Engine {
	r := gin.Default()
	r.Use(mw.RequestID())

	handler := NewHandler(s, service, directory)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst,
		cfg.Server.RequestIPHeader)

	// Read endpoints are cached briefly; the queue display polls aggressively.
	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	auth := mw.Auth(cfg.Auth.JWTSecret)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.OptionalAuth(cfg.Auth.JWTSecret))
	{
		// Public read surface: the kiosk and the queue display.
		api.GET("/users/:username", caching, handler.GetUserInfo)
		api.GET("/users/:username/schedule", caching, handler.UserSchedule)
		api.GET("/machines", caching, handler.ListMachines)
		api.GET("/machines/:stream_name", caching, handler.GetMachine)
		api.GET("/machines/:stream_name/current", caching, handler.WhoIsUsing)
		api.GET("/machines/:stream_name/upcoming", caching, handler.Upcoming)
		api.GET("/free_slots", caching, handler.FreeSlots)
		api.GET("/machine_types", caching, handler.ListMachineTypes)

		// Writes require a session token.
		authed := api.Group("")
		authed.Use(auth, mw.FlushAfterWrite(cacheStore))
		{
			authed.POST("/reservations", handler.CreateReservation)
			authed.PUT("/reservations/:id", handler.RescheduleReservation)
			authed.DELETE("/reservations/:id", handler.CancelReservation)

			// Catalog administration; the handlers enforce the maintainer role.
			authed.POST("/machines", handler.CreateMachine)
			authed.PUT("/machines/:id", handler.UpdateMachine)
			authed.PUT("/machines/:id/status", handler.TransitionStatus)
			authed.POST("/machine_types", handler.CreateMachineType)
		}
	}

	return r
}
