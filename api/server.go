package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantrail/autoscaler/api/handlers"
	"github.com/quantrail/autoscaler/api/middleware"
	"github.com/quantrail/autoscaler/api/websocket"
	"github.com/quantrail/autoscaler/internal/auth"
	"github.com/quantrail/autoscaler/internal/metrics"
	"github.com/quantrail/autoscaler/internal/orchestrator"
	"github.com/quantrail/autoscaler/pkg/config"
	"github.com/quantrail/autoscaler/pkg/database"
	"github.com/quantrail/autoscaler/pkg/database/queries"
)

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.APIConfig
	db          *database.DB
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
	orc         *orchestrator.Orchestrator
}

func NewServer(cfg config.APIConfig, metricsEnabled bool, db *database.DB, orc *orchestrator.Orchestrator) *Server {
	if cfg.JWTSecret == "" || cfg.JWTSecret == "change-me-in-production" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	authService := auth.NewService(cfg.JWTSecret, cfg.JWTIssuer, 24*time.Hour)
	wsHub := websocket.NewHub()

	s := &Server{
		router:      router,
		config:      cfg,
		db:          db,
		authService: authService,
		wsHub:       wsHub,
		orc:         orc,
	}

	s.setupMiddleware()
	s.setupRoutes(metricsEnabled)

	go wsHub.Run()

	if orc != nil {
		s.wsBridge = websocket.NewEventBridge(wsHub, orc.SubscribeAllEvents())
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	s.router.Use(middleware.RequestLogger())
}

func (s *Server) setupRoutes(metricsEnabled bool) {
	var eventsRepo *queries.ScalingEventRepository
	if s.db != nil {
		eventsRepo = queries.NewScalingEventRepository(s.db.DB)
	}

	healthHandler := handlers.NewHealthHandler(s.db, s.orc.Collector())
	statusHandler := handlers.NewStatusHandler(s.orc, eventsRepo)
	overrideHandler := handlers.NewOverrideHandler(s.orc)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	if metricsEnabled {
		s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.authService))
	{
		protected.GET("/services", statusHandler.List)
		protected.GET("/services/:name/status", statusHandler.Get)
		protected.GET("/services/:name/events", statusHandler.GetEvents)
		protected.GET("/services/:name/events/stats", statusHandler.GetStats)
		protected.GET("/events/recent", statusHandler.GetRecentEvents)

		protected.POST("/services/:name/override", overrideHandler.Override)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
