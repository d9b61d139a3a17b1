package channel

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"helpdesk/internal/models"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"
)

const whatsappSendTimeout = 30 * time.Second

// WhatsAppChannel is a multi-device WhatsApp client answering through Conversation
type WhatsAppChannel struct {
	conversation   *Conversation
	allow          AllowList
	client         *whatsmeow.Client
	storeContainer *sqlstore.Container
	qrOut          io.Writer
	ctx            context.Context
	cancel         context.CancelFunc
	handlerID      uint32
	logger         zerolog.Logger
}

// NewWhatsApp opens the device store at storePath. The first start prints a QR code to log in.
func NewWhatsApp(storePath string, allowFrom []string, conversation *Conversation, logger zerolog.Logger) (*WhatsAppChannel, error) {
	storePath = strings.TrimSpace(storePath)
	if storePath == "" {
		storePath = "whatsapp-store.db"
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return nil, fmt.Errorf("create whatsapp store dir: %w", err)
	}

	storeDSN := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.ToSlash(storePath))
	container, err := sqlstore.New(context.Background(), "sqlite", storeDSN, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("init whatsapp session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get whatsapp device: %w", err)
	}

	w := &WhatsAppChannel{
		conversation:   conversation,
		allow:          NewAllowList(allowFrom),
		client:         whatsmeow.NewClient(deviceStore, waLog.Noop),
		storeContainer: container,
		qrOut:          os.Stdout,
		ctx:            context.Background(),
		logger:         logger.With().Str("component", "whatsapp").Logger(),
	}
	w.handlerID = w.client.AddEventHandler(w.handleEvent)
	return w, nil
}

// Name returns the channel name
func (w *WhatsAppChannel) Name() string {
	return string(models.SourceWhatsApp)
}

// Start connects the client; it returns once connected
func (w *WhatsAppChannel) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.ctx = ctx

	if w.client.Store.ID == nil {
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			w.cancel()
			return fmt.Errorf("get whatsapp qr channel: %w", err)
		}
		go w.consumeQR(ctx, qrChan)
	}

	if err := w.client.Connect(); err != nil {
		w.cancel()
		return fmt.Errorf("connect whatsapp: %w", err)
	}

	go func() {
		<-ctx.Done()
		w.client.Disconnect()
	}()

	w.logger.Info().Msg("WhatsApp connected")
	return nil
}

// Stop disconnects and closes the device store
func (w *WhatsAppChannel) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.handlerID != 0 {
		w.client.RemoveEventHandler(w.handlerID)
		w.handlerID = 0
	}
	w.client.Disconnect()

	if w.storeContainer != nil {
		if err := w.storeContainer.Close(); err != nil {
			return fmt.Errorf("close whatsapp store: %w", err)
		}
		w.storeContainer = nil
	}
	w.logger.Info().Msg("WhatsApp stopped")
	return nil
}

func (w *WhatsAppChannel) consumeQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			if evt.Event == whatsmeow.QRChannelEventCode {
				w.logger.Info().Msg("Scan the QR code below to log in")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, w.qrOut)
				continue
			}
			if evt.Error != nil {
				w.logger.Error().Err(evt.Error).Str("event", evt.Event).Msg("WhatsApp login failed")
			} else {
				w.logger.Info().Str("event", evt.Event).Msg("WhatsApp login event")
			}
		}
	}
}

func (w *WhatsAppChannel) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Message:
		w.handleMessage(e)
	case *events.Disconnected:
		w.logger.Warn().Msg("WhatsApp disconnected")
	}
}

func (w *WhatsAppChannel) handleMessage(evt *events.Message) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	if evt.Info.Chat.Server == types.BroadcastServer {
		return
	}

	sender := evt.Info.Sender.ToNonAD()
	if !w.allow.IsAllowed(sender.User) {
		w.logger.Debug().Str("sender", sender.String()).Msg("Rejected message from sender outside allow list")
		return
	}

	text := messageText(evt.Message)
	if text == "" {
		return
	}

	chat := evt.Info.Chat
	w.conversation.Submit(w.ctx, sender.User, text, func(reply string) {
		w.send(chat, reply)
	})
}

func (w *WhatsAppChannel) send(chat types.JID, reply string) {
	if reply == "" {
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, whatsappSendTimeout)
	defer cancel()

	if _, err := w.client.SendMessage(ctx, chat, &waE2E.Message{Conversation: proto.String(reply)}); err != nil {
		w.logger.Error().Err(err).Str("chat", chat.String()).Msg("Failed to send WhatsApp reply")
	}
}

// messageText extracts plain or extended text, falling back to an image caption
func messageText(msg *waE2E.Message) string {
	if text := strings.TrimSpace(msg.GetConversation()); text != "" {
		return text
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		if text := strings.TrimSpace(ext.GetText()); text != "" {
			return text
		}
	}
	if image := msg.GetImageMessage(); image != nil {
		return strings.TrimSpace(image.GetCaption())
	}
	return ""
}
