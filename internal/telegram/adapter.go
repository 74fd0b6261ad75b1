package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/momentcast/internal/delivery"
	"github.com/user/momentcast/internal/gateway"
	"github.com/user/momentcast/internal/types"
)

const maxTelegramMessage = 4096

// TargetPrefix is the delivery target prefix handled by the adapter.
const TargetPrefix = "telegram:"

// Sender is the part of the bot API the adapter uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter sends moment notifications to Telegram chats and answers a few
// read-only commands about recent moments.
type Adapter struct {
	bot     *tgbotapi.BotAPI
	sender  Sender
	moments types.MomentStore
}

// New creates a Telegram adapter.
func New(token string, moments types.MomentStore) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{bot: bot, sender: bot, moments: moments}, nil
}

// Register hooks the adapter into a delivery registry.
func (a *Adapter) Register(reg *delivery.Registry) {
	reg.Register(TargetPrefix, a.Deliver)
}

// Deliver sends message to the chat named by target ("telegram:<chat_id>").
func (a *Adapter) Deliver(_ context.Context, target, message string) error {
	chatID, err := parseTarget(target)
	if err != nil {
		return gateway.Permanent(err)
	}
	return a.send(chatID, message)
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			a.handleCommand(ctx, update.Message.Chat.ID, update.Message.Command(), update.Message.CommandArguments())
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleCommand(ctx context.Context, chatID int64, command, args string) {
	var reply string
	switch command {
	case "start":
		reply = fmt.Sprintf("Hello! I post hot moments from live sessions.\nUse target %s%d to receive them.", TargetPrefix, chatID)

	case "recent":
		limit := 5
		if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 && n <= 20 {
			limit = n
		}
		list, err := a.moments.ListRecent(ctx, limit)
		if err != nil {
			slog.Error("telegram recent failed", "error", err)
			reply = "Error fetching moments."
			break
		}
		reply = formatList(list)

	case "moment":
		id := strings.TrimSpace(args)
		if id == "" {
			reply = "Usage: /moment <id>"
			break
		}
		found, err := a.moments.GetByIDs(ctx, types.MomentID(id))
		if err != nil || len(found) == 0 {
			reply = "Moment not found."
			break
		}
		reply = delivery.Render(types.NewMomentEvent(found[0]))

	default:
		reply = "Unknown command. Available: /start, /recent [n], /moment <id>"
	}
	if err := a.send(chatID, reply); err != nil {
		slog.Error("telegram reply failed", "chat_id", chatID, "error", err)
	}
}

func formatList(list []*types.Moment) string {
	if len(list) == 0 {
		return "No moments yet."
	}
	var b strings.Builder
	for _, m := range list {
		fmt.Fprintf(&b, "• %s (%s)\n  %s\n", m.Title, m.CreatedAt.Format("Jan 2 15:04"), m.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// send tries Markdown first and falls back to plain text.
func (a *Adapter) send(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.sender.Send(msg); err != nil {
			msg.ParseMode = ""
			if _, err := a.sender.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func parseTarget(target string) (int64, error) {
	raw, ok := strings.CutPrefix(target, TargetPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid telegram target: %s", target)
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", raw, err)
	}
	return chatID, nil
}
