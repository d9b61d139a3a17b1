package server

import (
	"context"
	"net/http"
	"time"

	"helpdesk/internal/auth"
	"helpdesk/internal/config"
	"helpdesk/internal/handlers"
	"helpdesk/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// WhatsAppKeyHeader carries the external bot API key
const WhatsAppKeyHeader = "X-WhatsApp-API-Key"

// Services are the collaborators the routes are wired to
type Services struct {
	Classifier   handlers.Classifier
	Tickets      handlers.TicketReader
	Desk         handlers.TicketDesk
	Processor    handlers.TicketProcessor
	Knowledge    handlers.KnowledgeSearcher
	Auth         *auth.Manager
	Users        handlers.UserStore
	Departments  handlers.DepartmentStore
	Analytics    handlers.SummaryProvider
	Feedback     handlers.FeedbackStore
	Interactions handlers.InteractionStore
}

// Server represents the application server
type Server struct {
	echo     *echo.Echo
	db       *sqlx.DB
	config   *config.Config
	services Services
	logger   zerolog.Logger
}

// New creates a new server instance
func New(cfg *config.Config, db *sqlx.DB, services Services, logger zerolog.Logger) *Server {
	return &Server{
		config:   cfg,
		db:       db,
		services: services,
		logger:   logger,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			event := s.logger.Info()
			if res.Status >= http.StatusInternalServerError {
				event = s.logger.Error()
			}
			event.
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()
	s.echo.Validator = handlers.NewValidator()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.config.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, WhatsAppKeyHeader},
	}))

	// Hide Echo banner
	s.echo.HideBanner = true

	s.setupRoutes()
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	svc := s.services

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.db))

	api := s.echo.Group("/api")
	api.GET("/", handlers.RootHandler(s.config.Version))

	// Public chat surface
	api.POST("/chat", handlers.ChatHandler(svc.Classifier, s.logger))
	api.POST("/whatsapp/analyze", handlers.WhatsAppAnalyzeHandler(svc.Classifier, s.logger),
		auth.APIKeyMiddleware(WhatsAppKeyHeader, s.config.WhatsAppAPIKey))

	staff := handlers.NewStaffHandlers(svc.Auth, svc.Users, svc.Departments, s.logger)
	api.POST("/auth/login", staff.Login)

	// Everything below requires a staff token
	private := api.Group("", auth.Middleware(svc.Auth))
	private.POST("/auth/logout", staff.Logout)
	private.GET("/auth/me", staff.Me)

	tickets := handlers.NewTicketHandlers(svc.Tickets, svc.Desk, s.logger)
	private.GET("/tickets", tickets.List)
	private.POST("/tickets", tickets.Create)
	private.GET("/tickets/:id", tickets.Get)
	private.PATCH("/tickets/:id", tickets.Update)
	supervisors := auth.RequireRole(models.RoleAdmin, models.RoleSupervisor)
	private.DELETE("/tickets/:id", tickets.Delete, supervisors)
	private.POST("/tickets/:id/accept", tickets.Accept)
	private.POST("/tickets/:id/assign", tickets.Assign, supervisors)
	private.POST("/tickets/:id/complete_remote", tickets.CompleteRemote)
	private.POST("/tickets/:id/request_on_site", tickets.RequestOnSite)
	private.POST("/tickets/:id/close", tickets.Close)
	private.POST("/tickets/:id/process", handlers.ProcessTicketHandler(svc.Processor, s.logger))
	private.GET("/tickets/:id/messages", tickets.ListMessages)
	private.POST("/tickets/:id/messages", tickets.AddMessage)
	private.POST("/tickets/:id/feedback", handlers.FeedbackHandler(svc.Tickets, svc.Feedback, s.logger))

	private.POST("/kb/search", handlers.KBSearchHandler(svc.Knowledge, s.logger))

	private.GET("/departments", staff.ListDepartments)
	private.GET("/departments/:id", staff.GetDepartment)

	adminOnly := auth.RequireRole(models.RoleAdmin)
	private.POST("/departments", staff.CreateDepartment, adminOnly)
	private.PUT("/departments/:id", staff.UpdateDepartment, adminOnly)
	private.DELETE("/departments/:id", staff.DeleteDepartment, adminOnly)
	private.GET("/users", staff.ListUsers, adminOnly)
	private.POST("/users", staff.CreateUser, adminOnly)
	private.DELETE("/users/:id", staff.DeleteUser, adminOnly)

	reporting := auth.RequireRole(models.RoleAdmin, models.RoleSupervisor, models.RoleManager)
	private.GET("/analytics", handlers.AnalyticsHandler(svc.Analytics, s.logger), reporting)
	private.GET("/monitoring/metrics", handlers.MetricsHandler(svc.Feedback, s.logger), reporting)
	private.GET("/monitoring/interactions", handlers.InteractionsHandler(svc.Interactions, s.logger), reporting)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
