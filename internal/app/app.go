// Package app builds the services shared by the helpdesk binaries
package app

import (
	"context"
	"fmt"

	"helpdesk/internal/analytics"
	"helpdesk/internal/assistant"
	"helpdesk/internal/auth"
	"helpdesk/internal/classifier"
	"helpdesk/internal/config"
	"helpdesk/internal/database"
	"helpdesk/internal/email"
	"helpdesk/internal/events"
	"helpdesk/internal/knowledge"
	"helpdesk/internal/openai"
	"helpdesk/internal/server"
	"helpdesk/internal/sla"
	"helpdesk/internal/tickets"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// App holds the wired services
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	DB          *sqlx.DB
	WriteClient *database.WriteClient

	OpenAI    *openai.Client
	Knowledge knowledge.Store
	Events    events.Publisher
	Email     *email.EmailService
	Analytics *analytics.Service

	Tickets       *database.TicketService
	Departments   *database.DepartmentService
	Users         *database.UserService
	Feedback      *database.FeedbackService
	Conversations *database.ConversationService

	Desk       *tickets.Desk
	Assistant  *assistant.Service
	Classifier *classifier.Service
	Auth       *auth.Manager
	SLA        *sla.Checker
}

// New connects to the database and builds every service. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	a.DB = db
	logger.Info().Msg("Database connection established successfully")

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	var err error
	if a.WriteClient, err = database.NewWriteClient(a.DB); err != nil {
		return err
	}
	if a.Tickets, err = database.NewTicketService(a.WriteClient); err != nil {
		return err
	}
	if a.Departments, err = database.NewDepartmentService(a.WriteClient); err != nil {
		return err
	}
	if a.Users, err = database.NewUserService(a.WriteClient); err != nil {
		return err
	}
	if a.Feedback, err = database.NewFeedbackService(a.WriteClient); err != nil {
		return err
	}
	if a.Conversations, err = database.NewConversationService(a.WriteClient); err != nil {
		return err
	}
	if a.Analytics, err = analytics.NewService(a.WriteClient, logger); err != nil {
		return err
	}

	if a.OpenAI, err = openai.NewClient(cfg, logger); err != nil {
		return err
	}
	if a.Knowledge, err = knowledge.NewStore(cfg, a.WriteClient, logger); err != nil {
		return err
	}
	if err := a.Knowledge.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare knowledge store: %w", err)
	}
	if a.Events, err = events.NewPublisher(cfg, logger); err != nil {
		return err
	}

	a.Email = email.NewEmailService(cfg.SendGridAPIKey, cfg.SupportEmail)
	if !a.Email.Enabled() {
		logger.Warn().Msg("SENDGRID_API_KEY not set, support notifications are disabled")
	}

	policy := sla.NewPolicy(cfg, a.Departments)
	a.Assistant = assistant.NewService(a.OpenAI, a.OpenAI, a.Knowledge, cfg.KnowledgeSourceType, logger)
	a.Desk = tickets.NewDesk(a.Tickets, policy, a.Events, a.Email, a.Analytics, logger).WithAnalyzer(a.Assistant)
	a.SLA = sla.NewChecker(a.Tickets, a.Events, a.Email, a.Analytics, cfg.SLACheckSchedule, logger)

	a.Classifier = classifier.NewService(classifier.Dependencies{
		Embedder:     a.OpenAI,
		Searcher:     a.Knowledge,
		Completer:    a.OpenAI,
		Tickets:      a.Desk,
		Interactions: a.Conversations,
		Tracker:      a.Analytics,
	}, classifier.Options{
		SourceType:       cfg.KnowledgeSourceType,
		StructuredOutput: cfg.StructuredOutput,
	}, logger)

	a.Auth = auth.NewManager(cfg, a.Users)
	if err := auth.EnsureAdmin(ctx, a.Users, cfg.AdminEmail, cfg.AdminPassword, logger); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	return nil
}

// ServerServices maps the app onto the HTTP routes
func (a *App) ServerServices() server.Services {
	return server.Services{
		Classifier:   a.Classifier,
		Tickets:      a.Tickets,
		Desk:         a.Desk,
		Processor:    a.Desk,
		Knowledge:    a.Assistant,
		Auth:         a.Auth,
		Users:        a.Users,
		Departments:  a.Departments,
		Analytics:    a.Analytics,
		Feedback:     a.Feedback,
		Interactions: a.Conversations,
	}
}

// Close releases connections in reverse order of creation
func (a *App) Close() {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}
	if a.Knowledge != nil {
		if err := a.Knowledge.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close knowledge store")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
