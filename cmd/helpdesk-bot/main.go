package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helpdesk/internal/app"
	"helpdesk/internal/channel"
	"helpdesk/internal/config"
	"helpdesk/internal/email"
	"helpdesk/internal/models"
	"helpdesk/internal/session"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const remoteTimeout = 2 * time.Minute

// ChannelFactory builds a channel around a conversation
type ChannelFactory func(cfg *config.Config, conversation *channel.Conversation, logger zerolog.Logger) (channel.Channel, error)

var rootCmd = &cobra.Command{
	Use:          "helpdesk-bot",
	Short:        "Messenger bots for the help desk",
	SilenceUsage: true,
}

var whatsappCmd = &cobra.Command{
	Use:   "whatsapp",
	Short: "Run the WhatsApp bot (scan the QR code on first start)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context(), models.SourceWhatsApp, newWhatsApp)
	},
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run the Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context(), models.SourceTelegram, newTelegram)
	},
}

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Answer customer mail posted by the SendGrid Inbound Parse webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context(), models.SourceEmail, newEmail)
	},
}

var inProcess bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&inProcess, "in-process", false,
		"Classify with a local service instead of calling CHAT_SERVICE_URL")
	rootCmd.AddCommand(whatsappCmd, telegramCmd, emailCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newWhatsApp(cfg *config.Config, conversation *channel.Conversation, logger zerolog.Logger) (channel.Channel, error) {
	return channel.NewWhatsApp(cfg.WhatsAppStorePath, cfg.WhatsAppAllowFrom, conversation, logger)
}

func newTelegram(cfg *config.Config, conversation *channel.Conversation, logger zerolog.Logger) (channel.Channel, error) {
	return channel.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAllowFrom, conversation, logger)
}

func newEmail(cfg *config.Config, conversation *channel.Conversation, logger zerolog.Logger) (channel.Channel, error) {
	sender := email.NewEmailService(cfg.SendGridAPIKey, cfg.SupportEmail)
	if !sender.Enabled() {
		return nil, fmt.Errorf("email channel requires SENDGRID_API_KEY")
	}
	return channel.NewEmail(channel.EmailConfig{
		Addr:      cfg.EmailInboundAddr,
		User:      cfg.EmailInboundUser,
		Password:  cfg.EmailInboundPassword,
		AllowFrom: cfg.EmailAllowFrom,
		Mailbox:   sender.SupportEmail(),
	}, sender, conversation, logger), nil
}

func runBot(ctx context.Context, source models.TicketSource, factory ChannelFactory) error {
	cfg := config.Load()
	logger := cfg.SetupLogger().With().Str("channel", string(source)).Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, err := session.NewStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	if closer, ok := sessions.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	var classify channel.Classifier
	if inProcess {
		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()
		classify = application.Classifier
	} else {
		logger.Info().Str("url", cfg.ChatServiceURL).Msg("Using remote chat service")
		classify = channel.NewRemoteClassifier(cfg.ChatServiceURL, remoteTimeout)
	}

	conversation := channel.NewConversation(sessions, classify, source, logger)
	ch, err := factory(cfg, conversation, logger)
	if err != nil {
		return err
	}

	if err := ch.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", ch.Name(), err)
	}
	logger.Info().Msg("Bot running, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return ch.Stop()
}
