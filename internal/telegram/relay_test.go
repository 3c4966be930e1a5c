package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/repository"
)

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func setupTestRelay(t *testing.T) (*Relay, *fakeSender, *repository.TelegramUserRepository, func()) {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	users := repository.NewTelegramUserRepository(database)
	fake := &fakeSender{}
	relay := &Relay{send: fake, users: users}

	return relay, fake, users, func() { database.Close() }
}

func TestRelay_NotifyJobComplete(t *testing.T) {
	relay, fake, users, cleanup := setupTestRelay(t)
	defer cleanup()

	ctx := context.Background()
	profileID := uuid.New()

	registered := &model.TelegramUser{
		ID:             uuid.New(),
		TelegramUserID: "100",
		ChatID:         555,
		ProfileID:      profileID,
		Registered:     true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := users.Upsert(ctx, registered); err != nil {
		t.Fatalf("Failed to register user: %v", err)
	}

	job := &model.Job{
		ID:        uuid.New(),
		ThreadID:  uuid.New(),
		ProfileID: profileID,
		Result:    "The current PoX cycle is 42.",
		Status:    model.JobStatusComplete,
	}
	relay.NotifyJobComplete(ctx, job)

	if len(fake.sent) != 1 {
		t.Fatalf("Sent %d messages, want 1", len(fake.sent))
	}
	if fake.sent[0].ChatID != 555 {
		t.Errorf("ChatID = %d, want 555", fake.sent[0].ChatID)
	}
	if fake.sent[0].Text != job.Result {
		t.Errorf("Text = %q, want %q", fake.sent[0].Text, job.Result)
	}
}

func TestRelay_StopKeepsProfileLink(t *testing.T) {
	relay, fake, users, cleanup := setupTestRelay(t)
	defer cleanup()

	ctx := context.Background()
	profileID := uuid.New()

	registered := &model.TelegramUser{
		ID:             uuid.New(),
		TelegramUserID: "42",
		ChatID:         555,
		Username:       "bob",
		ProfileID:      profileID,
		Registered:     true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := users.Upsert(ctx, registered); err != nil {
		t.Fatalf("Failed to register user: %v", err)
	}

	relay.handleMessage(ctx, &tgbotapi.Message{
		Text:     "/stop",
		Chat:     &tgbotapi.Chat{ID: 555},
		From:     &tgbotapi.User{ID: 42, UserName: "bob"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
	})

	if len(fake.sent) != 1 || !strings.Contains(fake.sent[0].Text, "Unsubscribed") {
		t.Fatalf("Reply = %+v, want an unsubscribe confirmation", fake.sent)
	}

	listed, err := users.ListRegisteredByProfile(ctx, profileID)
	if err != nil {
		t.Fatalf("Failed to list registered users: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("Listed %d registered users after /stop, want 0", len(listed))
	}

	// The row still carries the original profile: flipping the flag back
	// makes it visible under the same profile again.
	if err := users.SetRegistered(ctx, "42", true); err != nil {
		t.Fatalf("Failed to re-register: %v", err)
	}
	listed, err = users.ListRegisteredByProfile(ctx, profileID)
	if err != nil {
		t.Fatalf("Failed to list registered users: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("Listed %d registered users after flag flip, want 1", len(listed))
	}
}

func TestRelay_NotifySkipsFailedJobs(t *testing.T) {
	relay, fake, users, cleanup := setupTestRelay(t)
	defer cleanup()

	ctx := context.Background()
	profileID := uuid.New()

	user := &model.TelegramUser{
		ID:             uuid.New(),
		TelegramUserID: "100",
		ChatID:         555,
		ProfileID:      profileID,
		Registered:     true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := users.Upsert(ctx, user); err != nil {
		t.Fatalf("Failed to register user: %v", err)
	}

	relay.NotifyJobComplete(ctx, &model.Job{
		ID:        uuid.New(),
		ProfileID: profileID,
		Status:    model.JobStatusFailed,
	})

	if len(fake.sent) != 0 {
		t.Errorf("Sent %d messages for a failed job, want 0", len(fake.sent))
	}
}

func TestRelay_NotifySkipsUnregisteredProfiles(t *testing.T) {
	relay, fake, _, cleanup := setupTestRelay(t)
	defer cleanup()

	relay.NotifyJobComplete(context.Background(), &model.Job{
		ID:        uuid.New(),
		ProfileID: uuid.New(),
		Result:    "result",
		Status:    model.JobStatusComplete,
	})

	if len(fake.sent) != 0 {
		t.Errorf("Sent %d messages with no registered users, want 0", len(fake.sent))
	}
}
