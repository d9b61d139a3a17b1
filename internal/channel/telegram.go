package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"helpdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// telegramMaxLen keeps replies below Telegram's 4096 character limit
const telegramMaxLen = 4000

// TelegramBot is the part of the bot API the channel uses
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel answers Telegram messages through long polling
type TelegramChannel struct {
	conversation *Conversation
	allow        AllowList
	bot          TelegramBot
	cancel       context.CancelFunc
	logger       zerolog.Logger
}

// NewTelegram authorizes the bot token
func NewTelegram(token string, allowFrom []string, conversation *Conversation, logger zerolog.Logger) (*TelegramChannel, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	t := NewTelegramWithBot(bot, allowFrom, conversation, logger)
	t.logger.Info().Str("username", bot.Self.UserName).Msg("Telegram bot authorized")
	return t, nil
}

// NewTelegramWithBot wraps an existing bot client
func NewTelegramWithBot(bot TelegramBot, allowFrom []string, conversation *Conversation, logger zerolog.Logger) *TelegramChannel {
	return &TelegramChannel{
		conversation: conversation,
		allow:        NewAllowList(allowFrom),
		bot:          bot,
		logger:       logger.With().Str("component", "telegram").Logger(),
	}
}

// Name returns the channel name
func (t *TelegramChannel) Name() string {
	return string(models.SourceTelegram)
}

// Start begins polling for updates
func (t *TelegramChannel) Start(ctx context.Context) error {
	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					t.handleMessage(ctx, update.Message)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	t.logger.Info().Msg("Telegram polling started")
	return nil
}

// Stop ends polling
func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.bot.StopReceivingUpdates()
	t.logger.Info().Msg("Telegram stopped")
	return nil
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !t.allow.IsAllowed(senderID) && !t.allow.IsAllowed(msg.From.UserName) {
		t.logger.Debug().Str("sender", senderID).Msg("Rejected message from sender outside allow list")
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	chatID := msg.Chat.ID
	t.conversation.Submit(ctx, senderID, text, func(reply string) {
		if reply == "" {
			return
		}
		if err := t.send(chatID, reply); err != nil {
			t.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send Telegram reply")
		}
	})
}

func (t *TelegramChannel) send(chatID int64, text string) error {
	for _, chunk := range splitMessage(text, telegramMaxLen) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most maxLen runes, preferring line breaks
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > maxLen {
		cut := maxLen
		for i := maxLen - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
