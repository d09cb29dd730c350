package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"water-dispatch-backend/config"
	"water-dispatch-backend/internal/mw"
)

// Roles allowed to change a request's status.
var statusRoles = []string{"branch_manager", "fire_brigade"}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, server config.ServerConfig, auth config.AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	rateLimiter := mw.RateLimiter(rate.Limit(server.RateLimitPerSec), server.RateLimitBurst)

	ttl := time.Duration(server.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok", "mounted": h.hub.Mounted()}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/locations", rateLimiter, caching, h.GetLocations)
		api.GET("/vapid_public_key", rateLimiter, h.GetVAPIDPublicKey)
	}

	authed := api.Group("")
	authed.Use(mw.Auth(auth.JWTSecret), rateLimiter)
	{
		authed.GET("/monitor", h.GetMonitor)
		authed.DELETE("/monitor", h.DeleteMonitor)
		authed.PUT("/monitor/level", h.PutLevel)
		authed.POST("/monitor/adjust", h.PostAdjust)
		authed.POST("/monitor/poll", h.PostPoll)
		authed.GET("/activity", h.GetActivity)

		authed.GET("/requests", h.ListRequests)
		authed.POST("/requests", h.PostRequest)
		authed.PUT("/requests/:id/status", mw.RequireRole(statusRoles...), h.PutRequestStatus)

		authed.GET("/subscriptions", h.GetSubscription)
		authed.PUT("/subscriptions", h.PutSubscription)
		authed.DELETE("/subscriptions", h.DeleteSubscription)
	}

	return r
}
