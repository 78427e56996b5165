package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"market-hunter/internal/database"
	"market-hunter/internal/kafka"
	"market-hunter/internal/logger"
)

const shownListings = 5

// Store is what the bot reads. *database.DB implements it.
type Store interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*database.User, error)
	GetUserByID(ctx context.Context, userID uint) (*database.User, error)
	GetUserMonitors(ctx context.Context, userID uint) ([]*database.Monitor, error)
	GetMonitorListings(ctx context.Context, monitorID string, limit int) ([]*database.Listing, error)
}

// Refresher asks the engine for an immediate tick. *kafka.Producer
// implements it.
type Refresher interface {
	PublishScrapeRequest(ctx context.Context, monitorID string) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot answers read-only commands and forwards new_monitored_products events
// to the owner's chat.
type Bot struct {
	kafka.BaseHandler

	api   *tgbotapi.BotAPI
	send  sender
	store Store
	// refresh is nil when the event bus is off.
	refresh Refresher
	log     logger.Logger
}

func NewBot(token string, store Store, refresh Refresher, log logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false

	log.Info("bot is authorized", logger.String("username", api.Self.UserName))

	return &Bot{api: api, send: api, store: store, refresh: refresh, log: log}, nil
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := b.api.GetUpdatesChan(updateConfig)
	b.log.Info("bot is started, waiting for messages")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	b.log.Debug("message received",
		logger.String("from", message.From.UserName),
		logger.String("text", message.Text))

	if !message.IsCommand() {
		b.sendMessage(message.Chat.ID, `💬 Я працюю тільки з командами. Спробуй /help щоб побачити що я вмію! 🤖`)
		return
	}

	switch message.Command() {
	case "start":
		b.sendMessage(message.Chat.ID, startText(message.Chat.ID))
	case "help":
		b.sendMessage(message.Chat.ID, helpText)
	case "list":
		b.handleList(ctx, message)
	case "find":
		b.handleFind(ctx, message)
	case "refresh":
		b.handleRefresh(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "❓ Невідома команда: "+message.Command()+"\n\nВикористай /help щоб побачити всі доступні команди.")
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.send.Send(msg); err != nil {
		b.log.Warn("error sending message", logger.Error(err))
	}
}

// linkedUser returns the account linked to the chat, telling the user how to
// link one when there is none.
func (b *Bot) linkedUser(ctx context.Context, message *tgbotapi.Message) (*database.User, bool) {
	user, err := b.store.GetUserByTelegramID(ctx, message.From.ID)
	if err != nil {
		b.log.Error("failed to load user", logger.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Помилка отримання даних користувача")
		return nil, false
	}
	if user == nil {
		b.sendMessage(message.Chat.ID, notLinkedText(message.From.ID))
		return nil, false
	}
	return user, true
}

func (b *Bot) handleList(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.linkedUser(ctx, message)
	if !ok {
		return
	}

	monitors, err := b.store.GetUserMonitors(ctx, user.ID)
	if err != nil {
		b.log.Error("failed to load monitors", logger.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Помилка отримання моніторів")
		return
	}
	b.sendMessage(message.Chat.ID, formatMonitors(monitors))
}

func (b *Bot) handleFind(ctx context.Context, message *tgbotapi.Message) {
	user, ok := b.linkedUser(ctx, message)
	if !ok {
		return
	}

	monitors, err := b.store.GetUserMonitors(ctx, user.ID)
	if err != nil {
		b.log.Error("failed to load monitors", logger.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Помилка отримання моніторів")
		return
	}
	if len(monitors) == 0 {
		b.sendMessage(message.Chat.ID, formatMonitors(monitors))
		return
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) == 0 {
		b.sendMessage(message.Chat.ID, formatMonitors(monitors)+"\n\n📝 Використання: /find 1")
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(monitors) {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("❌ Невірний номер монітора. Використай номер від 1 до %d", len(monitors)))
		return
	}

	m := monitors[n-1]
	listings, err := b.store.GetMonitorListings(ctx, m.ID, shownListings+1)
	if err != nil {
		b.log.Error("failed to load listings", logger.String("monitor_id", m.ID), logger.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Помилка отримання оголошень")
		return
	}
	b.sendMessage(message.Chat.ID, formatListings(m.Query, listings))
}

// handleRefresh requests a tick of one monitor, or of every active monitor
// of the user when no number is given.
func (b *Bot) handleRefresh(ctx context.Context, message *tgbotapi.Message) {
	if b.refresh == nil {
		b.sendMessage(message.Chat.ID, "⏸ Оновлення зараз недоступне")
		return
	}

	user, ok := b.linkedUser(ctx, message)
	if !ok {
		return
	}

	monitors, err := b.store.GetUserMonitors(ctx, user.ID)
	if err != nil {
		b.log.Error("failed to load monitors", logger.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Помилка отримання моніторів")
		return
	}

	var targets []*database.Monitor
	if args := strings.Fields(message.CommandArguments()); len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(monitors) {
			b.sendMessage(message.Chat.ID, fmt.Sprintf("❌ Невірний номер монітора. Використай номер від 1 до %d", len(monitors)))
			return
		}
		if !monitors[n-1].IsActive {
			b.sendMessage(message.Chat.ID, "⏸ Цей монітор зупинений")
			return
		}
		targets = monitors[n-1 : n]
	} else {
		for _, m := range monitors {
			if m.IsActive {
				targets = append(targets, m)
			}
		}
	}

	if len(targets) == 0 {
		b.sendMessage(message.Chat.ID, "📭 Немає активних моніторів")
		return
	}

	for _, m := range targets {
		if err := b.refresh.PublishScrapeRequest(ctx, m.ID); err != nil {
			b.log.Error("failed to request refresh", logger.String("monitor_id", m.ID), logger.Error(err))
			b.sendMessage(message.Chat.ID, "❌ Не вдалося надіслати запит на оновлення")
			return
		}
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("🔄 Запит на оновлення надіслано, моніторів: %d", len(targets)))
}

// HandleNewProducts forwards a discovery to the owner's chat, if linked.
func (b *Bot) HandleNewProducts(ctx context.Context, event kafka.NewProductsEvent) error {
	if len(event.Products) == 0 {
		return nil
	}

	user, err := b.store.GetUserByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", event.UserID, err)
	}
	if user == nil || user.TelegramID == nil {
		b.log.Debug("owner has no linked chat", logger.Uint("user_id", event.UserID))
		return nil
	}

	b.sendMessage(*user.TelegramID, formatNewProducts(event))
	b.log.Info("notification sent",
		logger.String("monitor_id", event.MonitorID),
		logger.Int("products", len(event.Products)))
	return nil
}
