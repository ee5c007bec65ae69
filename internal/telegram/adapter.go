// Package telegram bridges Telegram chats to the companion pipeline and
// serves as a delivery channel for daily check-ins.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/kindred/internal/orchestrator"
	"github.com/user/kindred/internal/types"
)

const maxTelegramMessage = 4096

// addressPrefix is the notify-address scheme handled by this adapter.
const addressPrefix = "telegram:"

// Handler runs the message pipeline for one user message.
type Handler func(ctx context.Context, userID types.UserID, message string) (*orchestrator.Reply, error)

// Adapter bridges Telegram to the orchestrator. Chats are linked to users
// via /link, recorded as the profile's notify address so links survive
// restarts and the rollup can push check-ins back.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	handler  Handler
	profiles types.ProfileStore
	users    types.UserDirectory
	log      *slog.Logger
}

// New creates a Telegram adapter.
func New(token string, handler Handler, profiles types.ProfileStore, users types.UserDirectory, log *slog.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:      bot,
		handler:  handler,
		profiles: profiles,
		users:    users,
		log:      log,
	}, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	userID, ok := a.resolveUser(ctx, chatID)
	if !ok {
		a.send(chatID, "I don't know who you are yet. Link your account with /link your@email.com")
		return
	}

	reply, err := a.handler(ctx, userID, msg.Text)
	if err != nil {
		a.log.Error("telegram message handling failed", "user", userID, "error", err)
		a.send(chatID, "Sorry, I had trouble with that one. Can you try again?")
		return
	}
	a.send(chatID, reply.Text)
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.send(chatID, "Hey! I'm here whenever you want to talk. Link your account with /link your@email.com and then just send me a message.")

	case "link":
		email := strings.TrimSpace(msg.CommandArguments())
		if email == "" || !strings.Contains(email, "@") {
			a.send(chatID, "Usage: /link your@email.com")
			return
		}
		err := a.profiles.Update(ctx, types.UserID(email), map[string]string{
			"notify_address": Address(chatID),
		})
		if err != nil {
			a.log.Error("link failed", "email", email, "error", err)
			a.send(chatID, "I couldn't link that account, sorry.")
			return
		}
		a.send(chatID, fmt.Sprintf("Linked to %s. I'll check in with you here.", email))

	case "whoami":
		if userID, ok := a.resolveUser(ctx, chatID); ok {
			a.send(chatID, fmt.Sprintf("This chat is linked to %s.", userID))
			return
		}
		a.send(chatID, "This chat isn't linked yet. Use /link your@email.com")

	default:
		a.send(chatID, "Unknown command. Available: /start, /link, /whoami")
	}
}

// resolveUser finds the user whose profile carries this chat's notify
// address.
func (a *Adapter) resolveUser(ctx context.Context, chatID int64) (types.UserID, bool) {
	address := Address(chatID)
	users, err := a.users.Users(ctx)
	if err != nil {
		a.log.Error("user enumeration failed", "error", err)
		return "", false
	}
	for _, userID := range users {
		profile, err := a.profiles.Get(ctx, userID)
		if err != nil {
			continue
		}
		if profile.NotifyAddress == address {
			return userID, true
		}
	}
	return "", false
}

// SendTo delivers a message to a notify address of the form
// "telegram:<chatID>". It satisfies the delivery registry's Handler shape.
func (a *Adapter) SendTo(address, message string) error {
	raw, ok := strings.CutPrefix(address, addressPrefix)
	if !ok {
		return fmt.Errorf("not a telegram address: %s", address)
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", raw, err)
	}
	a.send(chatID, message)
	return nil
}

func (a *Adapter) send(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				a.log.Error("telegram send failed", "chat", chatID, "error", err)
			}
		}
	}
}

// Address renders the notify address for a chat.
func Address(chatID int64) string {
	return addressPrefix + strconv.FormatInt(chatID, 10)
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
