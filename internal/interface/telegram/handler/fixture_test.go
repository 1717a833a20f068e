package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	app "github.com/amazo-world/amazo-bot/internal/application/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/persistence/memory"
)

type sentMessage struct {
	Kind      string // send, edit, answer
	ChatID    int64
	MessageID int64
	Response  Response
}

// recorder is a Responder that keeps every call.
type recorder struct {
	mu    sync.Mutex
	calls []sentMessage
	err   error
}

func (r *recorder) Send(ctx context.Context, chatID int64, resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sentMessage{Kind: "send", ChatID: chatID, Response: resp})
	return r.err
}

func (r *recorder) Edit(ctx context.Context, chatID, messageID int64, resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sentMessage{Kind: "edit", ChatID: chatID, MessageID: messageID, Response: resp})
	return r.err
}

func (r *recorder) AnswerCallback(ctx context.Context, callbackID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sentMessage{Kind: "answer"})
	return nil
}

// texts returns the text of every sent or edited message.
func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		if c.Kind != "answer" {
			out = append(out, c.Response.Text)
		}
	}
	return out
}

func (r *recorder) last() sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].Kind != "answer" {
			return r.calls[i]
		}
	}
	return sentMessage{}
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

type staticIdentity string

func (s staticIdentity) BotUsername(ctx context.Context) (string, error) {
	if s == "" {
		return "", errors.New("getMe failed")
	}
	return string(s), nil
}

// fakeSender delivers broadcasts into a map.
type fakeSender struct {
	mu   sync.Mutex
	got  map[int64]string
	fail map[int64]bool
}

func (f *fakeSender) SendText(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errors.New("blocked")
	}
	f.got[chatID] = text
	return nil
}

type fixture struct {
	repo    *memory.GiveawayRepository
	convs   *memory.ConversationStore
	out     *recorder
	sender  *fakeSender
	now     time.Time
	start   *StartHandler
	entry   *EntryHandler
	account *AccountHandler
	admin   *AdminHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		repo:   memory.NewGiveawayRepository(nil),
		convs:  memory.NewConversationStore(time.Minute),
		out:    &recorder{},
		sender: &fakeSender{got: map[int64]string{}, fail: map[int64]bool{}},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	clock := giveaway.ClockFunc(func() time.Time { return f.now })
	lifecycle := app.NewLifecycle(f.repo, clock, logger)
	ledger := app.NewLedger(f.repo, app.LedgerConfig{Logger: logger})
	identity := staticIdentity("AmazoBot")

	f.start = NewStartHandler(f.convs, "https://t.me/Amaz0World", logger)
	f.entry = NewEntryHandler(EntryConfig{
		Lifecycle:     lifecycle,
		Ledger:        ledger,
		Conversations: f.convs,
		Identity:      identity,
		Logger:        logger,
	})
	f.account = NewAccountHandler(lifecycle, ledger, identity, 10, logger)
	f.admin = NewAdminHandler(AdminConfig{
		Lifecycle: lifecycle,
		Ledger:    ledger,
		Admin:     app.NewAdmin(f.repo, logger),
		Broadcaster: app.NewBroadcaster(ledger, f.sender, app.BroadcastConfig{
			Concurrency:   2,
			RatePerSecond: 1000,
			Logger:        logger,
		}),
	})
	return f
}

// openEvent creates an active event ending 2026-03-31.
func (f *fixture) openEvent(t *testing.T, id giveaway.EventID, name string) {
	t.Helper()
	ev, err := giveaway.NewEvent(id, name, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, f.repo.DeactivateAllEvents(context.Background()))
	require.NoError(t, f.repo.CreateEvent(context.Background(), ev))
}

func (f *fixture) command(userID giveaway.UserID, command, args string) *Request {
	return &Request{
		UserID:    userID,
		ChatID:    int64(userID),
		Username:  fmt.Sprintf("user%d", userID),
		FirstName: "Tester",
		Command:   command,
		Args:      args,
		Text:      "/" + command + " " + args,
		Responder: f.out,
	}
}

func (f *fixture) text(userID giveaway.UserID, text string) *Request {
	return &Request{
		UserID:    userID,
		ChatID:    int64(userID),
		Username:  fmt.Sprintf("user%d", userID),
		Text:      text,
		Responder: f.out,
	}
}

func (f *fixture) callback(userID giveaway.UserID, data string) *Request {
	return &Request{
		UserID:       userID,
		ChatID:       int64(userID),
		CallbackID:   "cb-1",
		CallbackData: data,
		MessageID:    77,
		Responder:    f.out,
	}
}

const validWallet = "0x52908400098527886E0F7030069857D2E4169EE7"
