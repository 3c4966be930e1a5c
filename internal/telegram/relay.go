// Package telegram relays finished job results to registered Telegram chats
// and handles the registration commands.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/repository"
)

const maxTelegramMessage = 4096

// sender is the slice of the bot API the relay uses. Tests substitute a fake.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Relay connects the orchestration backend to Telegram. Users register a
// chat against a profile with /start <profile_id>; every finished job for
// that profile is then delivered to the chat.
type Relay struct {
	bot   *tgbotapi.BotAPI
	send  sender
	users *repository.TelegramUserRepository
}

// New creates a Relay backed by the Telegram bot API.
func New(token string, users *repository.TelegramUserRepository) (*Relay, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Relay{bot: bot, send: bot, users: users}, nil
}

// Start begins long-polling for Telegram updates until the context is
// cancelled.
func (r *Relay) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := r.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			r.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			return
		}
	}
}

func (r *Relay) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		r.reply(msg.Chat.ID, "Send /start <profile_id> to subscribe to a profile's agent results.")
		return
	}

	switch msg.Command() {
	case "start":
		r.handleStart(ctx, msg)
	case "stop":
		r.handleStop(ctx, msg)
	default:
		r.reply(msg.Chat.ID, "Unknown command. Available: /start <profile_id>, /stop")
	}
}

func (r *Relay) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	profileID, err := uuid.Parse(strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		r.reply(chatID, "Usage: /start <profile_id>")
		return
	}

	user := &model.TelegramUser{
		ID:             uuid.New(),
		TelegramUserID: strconv.FormatInt(msg.From.ID, 10),
		ChatID:         chatID,
		Username:       msg.From.UserName,
		ProfileID:      profileID,
		Registered:     true,
	}
	if err := r.users.Upsert(ctx, user); err != nil {
		log.Printf("Failed to register telegram user %d: %v", msg.From.ID, err)
		r.reply(chatID, "Registration failed, please try again.")
		return
	}

	r.reply(chatID, "Registered. You will receive agent results for this profile here.")
}

func (r *Relay) handleStop(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	// Only the registered flag is flipped; the profile link survives.
	if err := r.users.SetRegistered(ctx, strconv.FormatInt(msg.From.ID, 10), false); err != nil {
		log.Printf("Failed to unregister telegram user %d: %v", msg.From.ID, err)
		r.reply(chatID, "Unsubscribe failed, please try again.")
		return
	}

	r.reply(chatID, "Unsubscribed. You will no longer receive agent results.")
}

// NotifyJobComplete delivers a finished job's result to every chat
// registered for the job's profile. Failed jobs are skipped.
func (r *Relay) NotifyJobComplete(ctx context.Context, job *model.Job) {
	if job.Status != model.JobStatusComplete || job.Result == "" {
		return
	}

	registered, err := r.users.ListRegisteredByProfile(ctx, job.ProfileID)
	if err != nil {
		log.Printf("Failed to list telegram users for profile %s: %v", job.ProfileID, err)
		return
	}

	for _, user := range registered {
		r.reply(user.ChatID, job.Result)
	}
}

func (r *Relay) reply(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := r.send.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := r.send.Send(msg); err != nil {
				log.Printf("send message error: %v", err)
			}
		}
	}
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
