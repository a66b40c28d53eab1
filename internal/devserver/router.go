package devserver

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	Handler     *Handler
	RedisClient *redis.Client
	NewRelicApp *newrelic.Application
	AuthSecret  string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Retried settlement calls replay their first outcome. Redis keeps the
	// replay across restarts; without it the cache is in-process.
	var replay replayCache = NewMemoryReplayCache()
	if deps.RedisClient != nil {
		replay = NewRedisReplayCache(deps.RedisClient)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	auth := AuthMiddleware(deps.AuthSecret)

	// Document store routes.
	documents := router.Group("/v1/documents", auth)
	{
		documents.GET("/:collection", deps.Handler.ListDocuments)
		documents.POST("/:collection", deps.Handler.CreateDocument)
		documents.GET("/:collection/:id", deps.Handler.GetDocument)
		documents.PUT("/:collection/:id", deps.Handler.SetDocument)
		documents.PATCH("/:collection/:id", deps.Handler.PatchDocument)
		documents.DELETE("/:collection/:id", deps.Handler.DeleteDocument)
	}

	// Presence and settlement routes. Document writes carry their own
	// preconditions, so idempotent replay applies here only.
	api := router.Group("/api", auth, IdempotencyMiddleware(replay))
	{
		api.POST("/driver/online", deps.Handler.DriverOnline)
		api.POST("/driver/offline", deps.Handler.DriverOffline)
		api.POST("/driver/heartbeat", deps.Handler.DriverHeartbeat)
		api.GET("/drivers/online", deps.Handler.OnlineDrivers)

		api.POST("/cancel-order", deps.Handler.CancelOrder)
		api.POST("/process-trip-payout", deps.Handler.ProcessTripPayout)
	}

	return router
}
