// Package notify pushes appointment events to the business owner's Telegram chat.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agendei/internal/config"
	"agendei/internal/events"
	"agendei/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBotAPI connects to Telegram with the configured token and timeout.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

type outgoing struct {
	chatID int64
	text   string
}

// TelegramNotifier formats appointment events for the owner chat of each
// business. Businesses without a configured chat are skipped.
type TelegramNotifier struct {
	sender Sender
	chats  config.TelegramConfig
	queue  chan outgoing
	unsubs []func()
	logger *zerolog.Logger
}

func NewTelegramNotifier(sender Sender, cfg config.TelegramConfig, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		chats:  cfg,
		queue:  make(chan outgoing, 64),
		logger: logger,
	}
}

func (n *TelegramNotifier) Attach(bus *events.EventBus) {
	n.unsubs = append(n.unsubs,
		bus.Subscribe(events.EventAppointmentCreated, n.handle),
		bus.Subscribe(events.EventAppointmentStatusChanged, n.handle),
	)
}

func (n *TelegramNotifier) handle(event *events.Event) error {
	var payload events.AppointmentEventPayload
	if err := event.Decode(&payload); err != nil {
		n.logger.Error().Err(err).Str("event_type", event.Type).Msg("Decode appointment event")
		return err
	}

	chatID := n.chats.OwnerChatFor(payload.BusinessID)
	if chatID == 0 {
		return nil
	}

	select {
	case n.queue <- outgoing{chatID: chatID, text: FormatEvent(event.Type, payload)}:
	default:
		n.logger.Warn().Int64("business_id", payload.BusinessID).Msg("Telegram queue full, dropping notification")
	}
	return nil
}

// Run sends queued messages until ctx is cancelled.
func (n *TelegramNotifier) Run(ctx context.Context) {
	defer func() {
		for _, unsub := range n.unsubs {
			unsub()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if _, err := n.sender.Send(tgbotapi.NewMessage(msg.chatID, msg.text)); err != nil {
				n.logger.Error().Err(err).Int64("chat_id", msg.chatID).Msg("Failed to send telegram notification")
			}
		}
	}
}

var statusLabels = map[string]string{
	models.StatusConfirmed:       "✅ Confirmado",
	models.StatusPending:         "⏳ Pendente",
	models.StatusAwaitingDeposit: "💰 Aguardando sinal",
	models.StatusCancelled:       "❌ Cancelado",
}

// FormatEvent renders the owner message for an appointment event.
func FormatEvent(eventType string, p events.AppointmentEventPayload) string {
	var b strings.Builder

	switch eventType {
	case events.EventAppointmentCreated:
		b.WriteString("📅 Novo agendamento")
		if p.Source == models.SourceBooking {
			b.WriteString(" pelo link público")
		}
		b.WriteString("\n\n")
	default:
		fmt.Fprintf(&b, "🔄 Agendamento #%d atualizado\n\n", p.AppointmentID)
	}

	fmt.Fprintf(&b, "👤 %s\n", p.ClientName)
	fmt.Fprintf(&b, "💇 %s\n", p.ServiceName)
	fmt.Fprintf(&b, "🗓 %s às %s\n", p.Date.Format("02/01/2006"), p.Time)

	label, ok := statusLabels[p.Status]
	if !ok {
		label = p.Status
	}
	fmt.Fprintf(&b, "Status: %s", label)
	return b.String()
}
