package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphmem/pkg/config"
	"github.com/soundprediction/graphmem/pkg/graph"
	"github.com/soundprediction/graphmem/pkg/server/handlers"
	"github.com/soundprediction/graphmem/pkg/sessions"
	"github.com/soundprediction/graphmem/pkg/store"
	"github.com/soundprediction/graphmem/pkg/types"
)

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	router   *gin.Engine
	mgr      *store.Manager
	registry *store.Registry
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, mgr *store.Manager, registry *store.Registry, logger *slog.Logger) *Server {
	return &Server{
		config:   cfg,
		mgr:      mgr,
		registry: registry,
		logger:   logger,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	// Set gin mode
	gin.SetMode(s.config.Server.Mode)

	// Create router
	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.mgr)
	graphHandler := handlers.NewGraphHandler(graph.NewStore(s.mgr))
	backendHandler := handlers.NewBackendHandler(s.mgr, s.registry)
	sessionsHandler := handlers.NewSessionsHandler(sessions.NewStore(s.mgr))

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck) // Kubernetes liveness probe
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		// Graph routes
		v1.GET("/graph", graphHandler.ReadGraph)
		v1.GET("/graph/flat", graphHandler.ReadGraphFlat)
		v1.GET("/graph/search", graphHandler.Search)
		v1.GET("/graph/stats", graphHandler.Stats)
		v1.POST("/graph/open", graphHandler.OpenNodes)

		v1.POST("/entities", graphHandler.CreateEntities)
		v1.DELETE("/entities", graphHandler.DeleteEntities)
		v1.POST("/observations", graphHandler.AddObservations)
		v1.DELETE("/observations", graphHandler.DeleteObservations)
		v1.POST("/relations", graphHandler.CreateRelations)
		v1.DELETE("/relations", graphHandler.DeleteRelations)

		// Backend routes
		v1.GET("/backend", backendHandler.Status)
		v1.POST("/backend/switch", backendHandler.Switch)

		// User and session routes
		v1.POST("/users", sessionsHandler.RegisterUser)
		v1.PUT("/users/password", sessionsHandler.UpdatePassword)
		v1.POST("/sessions", sessionsHandler.RecordInvocation)
		v1.GET("/sessions/:session_id", sessionsHandler.ListBySession)
		v1.PUT("/invocations/:id/result", sessionsHandler.AttachResult)
		v1.GET("/tools/:tool_name/invocations", sessionsHandler.ListByTool)
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("Starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping server")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextMiddleware extracts context information from headers
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		userID := c.GetHeader("X-User-ID")
		if userID != "" {
			ctx = context.WithValue(ctx, types.ContextKeyUserID, userID)
		}

		sessionID := c.GetHeader("X-Session-ID")
		if sessionID != "" {
			ctx = context.WithValue(ctx, types.ContextKeySessionID, sessionID)
		}

		ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "server")

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
