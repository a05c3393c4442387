package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mcserver-backend/config"
	"mcserver-backend/internal/metrics"
	"mcserver-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg config.ServerConfig, logger *zap.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(logger), mw.Metrics(m))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	// Liveness and scrape endpoints stay outside the limiter.
	r.GET("/", handler.GetRoot)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/stats/latest", caching, handler.GetLatestStats)
		api.GET("/stats/series/:metric", caching, handler.GetSeries)
		api.GET("/players/:name", caching, handler.GetPlayer)
		api.GET("/duels/:name", caching, handler.GetDuels)
		api.PUT("/duels/:name", handler.PutDuels)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
