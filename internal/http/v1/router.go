// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arena/internal/blob"
	"arena/internal/catalog"
	"arena/internal/events"
	"arena/internal/http/v1/handlers"
	"arena/internal/http/v1/middleware"
	"arena/internal/storage/postgres"
	"arena/internal/submissions"
	"arena/pkg/logger"
)

// RouterConfig holds everything the router wires together.
type RouterConfig struct {
	// Pool is the database connection pool (used by health checks).
	Pool *postgres.Pool

	// TxManager scopes each mutating request to one transaction.
	TxManager *postgres.TxManager

	// Store is the generic row store.
	Store *postgres.Store

	// Registry is the entity catalog; it determines the generic routes.
	Registry *catalog.Registry

	// Submissions serves the aggregated read view.
	Submissions *submissions.Service

	// Blobs is the content-addressed file store.
	Blobs blob.Store

	// Hub feeds the live event stream.
	Hub *events.Hub

	// Logger for request logging.
	Logger *logger.Logger

	// JWTValidator guards the write surface. Nil disables authentication
	// (tests and local development).
	JWTValidator middleware.JWTValidator

	// TokenIssuer serves the login endpoint; optional.
	TokenIssuer *handlers.AuthHandler
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Hub != nil {
		eventsHandler := handlers.NewEventsHandler(cfg.Hub)
		router.GET("/events", eventsHandler.Stream)
	}

	// Reads are open; mutations require a token when a validator is set.
	requireAuth := func() gin.HandlerFunc {
		if cfg.JWTValidator == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.Auth(cfg.JWTValidator)
	}()

	if cfg.Blobs != nil {
		filesHandler := handlers.NewFilesHandler(cfg.Blobs)
		files := router.Group("/files")
		{
			files.GET("/:digest", filesHandler.Get)
			files.GET("/:digest/:filename", filesHandler.Get)
			files.PUT("", requireAuth, filesHandler.Put)
		}
	}

	api := router.Group("/api/v1")
	{
		if cfg.TokenIssuer != nil {
			api.POST("/auth/login", cfg.TokenIssuer.Login)
		}

		entityHandler := handlers.NewEntityHandler(cfg.Store, cfg.TxManager)
		for _, desc := range cfg.Registry.List() {
			group := api.Group("/" + desc.Table)
			group.GET("", entityHandler.List(desc))
			group.GET("/:ref", entityHandler.Retrieve(desc))
			group.GET("/:ref/:rel", entityHandler.Sublist(desc))
			group.POST("", requireAuth, entityHandler.Create(desc))
			group.PUT("/:ref", requireAuth, entityHandler.Update(desc))
			group.DELETE("/:ref", requireAuth, entityHandler.Delete(desc))
		}

		if cfg.Submissions != nil {
			submissionsHandler := handlers.NewSubmissionsHandler(cfg.Submissions)
			view := api.Group("/submission-view")
			view.GET("", submissionsHandler.List)
			view.GET("/:ref", submissionsHandler.Get)
		}
	}

	return router
}
