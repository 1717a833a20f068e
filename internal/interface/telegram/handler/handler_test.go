package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/amazo-world/amazo-bot/internal/application/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/external/telegram"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/persistence/memory"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/presenter"
)

func TestParseReferralArg(t *testing.T) {
	tests := []struct {
		args   string
		wantID giveaway.UserID
		wantOK bool
	}{
		{"", 0, false},
		{"abc", 0, false},
		{"-2", 0, false},
		{"0", 0, false},
		{"123", 123, true},
		{" 55 extra", 55, true},
	}
	for _, tt := range tests {
		id, ok := ParseReferralArg(tt.args)
		assert.Equal(t, tt.wantOK, ok, tt.args)
		assert.Equal(t, tt.wantID, id, tt.args)
	}
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := f.command(2, "start", "1")
	req.FirstName = "Ana_B"
	require.NoError(t, f.start.Handle(ctx, req))

	msg := f.out.last()
	assert.Equal(t, telegram.ParseModeMarkdownV2, msg.Response.ParseMode)
	assert.Contains(t, msg.Response.Text, "Welcome to Amazo-World, Ana\\_B\\!")
	require.NotNil(t, msg.Response.Keyboard)
	assert.Len(t, msg.Response.Keyboard.InlineKeyboard, 4)

	conv, err := f.convs.Get(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, conv.ReferrerID)
	assert.Equal(t, giveaway.UserID(1), *conv.ReferrerID)
	assert.False(t, conv.Active())
}

func TestStart_SelfReferralAndCallbacksIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.start.Handle(ctx, f.command(3, "start", "3")))
	conv, err := f.convs.Get(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, conv.ReferrerID)

	f.out.reset()
	require.NoError(t, f.start.Handle(ctx, f.callback(3, "start")))
	assert.Empty(t, f.out.calls)
}

func TestEntry_FullFlowWithReferral(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 5, "Spring Drop")

	// Referrer registers first.
	require.NoError(t, f.repo.InsertEntry(ctx, &giveaway.Entry{UserID: 1, EventID: 5, Username: "ref", WalletAddress: validWallet}))

	require.NoError(t, f.start.Handle(ctx, f.command(2, "start", "1")))
	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))

	msg := f.out.last()
	assert.Contains(t, msg.Response.Text, "Entering: Spring Drop")
	require.NotNil(t, msg.Response.Keyboard)
	assert.Equal(t, presenter.CallbackAcceptTerms, msg.Response.Keyboard.InlineKeyboard[0][0].CallbackData)

	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(2, presenter.CallbackAcceptTerms)))
	edit := f.out.last()
	assert.Equal(t, "edit", edit.Kind)
	assert.Equal(t, int64(77), edit.MessageID)
	assert.Equal(t, presenter.WalletPrompt, edit.Response.Text)

	handled, err := f.entry.Wallet(ctx, f.text(2, "  "+validWallet+"  "))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t,
		"Successfully registered for Event #5.\n\nYour referral link:\nhttps://t.me/AmazoBot?start=2",
		f.out.last().Response.Text)

	entry, err := f.repo.GetEntry(ctx, 2, 5)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, validWallet, entry.WalletAddress)
	assert.Equal(t, "user2", entry.Username)
	require.NotNil(t, entry.ReferredBy)
	assert.Equal(t, giveaway.UserID(1), *entry.ReferredBy)

	referrer, err := f.repo.GetEntry(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, referrer.ReferralCount)

	conv, err := f.convs.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, conv.Active())
	assert.NotNil(t, conv.ReferrerID, "referrer is kept after the conversation")
}

func TestEntry_NoOpenEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.entry.Enter(ctx, f.callback(2, presenter.CallbackStartEntry)))
	assert.Equal(t, []string{presenter.NoActiveGiveaway}, f.out.texts())

	// An event past its end date is closed on the way.
	f.openEvent(t, 1, "Old")
	f.now = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	f.out.reset()

	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))
	assert.Equal(t, []string{presenter.NoActiveGiveaway}, f.out.texts())

	active, err := f.repo.FetchActiveEvent(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestEntry_AcceptOutsideTermsOnlyAcknowledges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(2, presenter.CallbackAcceptTerms)))
	require.Len(t, f.out.calls, 1)
	assert.Equal(t, "answer", f.out.calls[0].Kind)
}

func TestEntry_InvalidWalletStaysInWalletStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 1, "Drop")

	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))
	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(2, presenter.CallbackAcceptTerms)))

	for _, wallet := range []string{"short", validWallet + "0123456789"} {
		handled, err := f.entry.Wallet(ctx, f.text(2, wallet))
		require.NoError(t, err)
		assert.True(t, handled)
		assert.Equal(t, presenter.InvalidWallet, f.out.last().Response.Text)
	}

	conv, err := f.convs.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, giveaway.StepWallet, conv.Step)
}

func TestEntry_AlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 1, "Drop")
	require.NoError(t, f.repo.InsertEntry(ctx, &giveaway.Entry{UserID: 2, EventID: 1, WalletAddress: validWallet}))

	var observed error
	f.entry.onRegistration = func(err error) { observed = err }

	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))
	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(2, presenter.CallbackAcceptTerms)))
	handled, err := f.entry.Wallet(ctx, f.text(2, validWallet))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, presenter.AlreadyRegisteredText(1), f.out.last().Response.Text)
	assert.ErrorIs(t, observed, shared.ErrAlreadyRegistered)

	conv, err := f.convs.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, conv.Active())
}

// failingInserts rejects every registration with a store outage.
type failingInserts struct {
	*memory.GiveawayRepository
}

func (failingInserts) InsertEntryWithReferral(ctx context.Context, entry *giveaway.Entry) error {
	return shared.ErrStoreUnavailable
}

func TestEntry_StoreFailureEndsConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 1, "Drop")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := failingInserts{f.repo}
	clock := giveaway.ClockFunc(func() time.Time { return f.now })
	f.entry = NewEntryHandler(EntryConfig{
		Lifecycle:     app.NewLifecycle(repo, clock, logger),
		Ledger:        app.NewLedger(repo, app.LedgerConfig{Logger: logger}),
		Conversations: f.convs,
		Identity:      staticIdentity("AmazoBot"),
		Logger:        logger,
	})

	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))
	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(2, presenter.CallbackAcceptTerms)))

	handled, err := f.entry.Wallet(ctx, f.text(2, validWallet))
	assert.True(t, handled)
	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))
	assert.Equal(t, presenter.RegistrationFailed, f.out.last().Response.Text)

	conv, err := f.convs.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, conv.Active())
}

func TestEntry_EventExpiredBeforeWallet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 1, "Drop")

	require.NoError(t, f.entry.Enter(ctx, f.command(10, "enter", "")))
	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(10, presenter.CallbackAcceptTerms)))

	// The event closed at the end of 2026-03-31.
	f.now = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	handled, err := f.entry.Wallet(ctx, f.text(10, validWallet))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, presenter.NoActiveGiveaway, f.out.last().Response.Text)

	entry, err := f.repo.GetEntry(ctx, 10, 1)
	require.NoError(t, err)
	assert.Nil(t, entry)

	conv, err := f.convs.Get(ctx, 10)
	require.NoError(t, err)
	assert.False(t, conv.Active())
}

func TestEntry_EventReplacedBeforeWallet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 1, "Drop")

	require.NoError(t, f.entry.Enter(ctx, f.command(10, "enter", "")))
	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(10, presenter.CallbackAcceptTerms)))

	f.openEvent(t, 2, "Summer Drop")

	handled, err := f.entry.Wallet(ctx, f.text(10, validWallet))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, presenter.NoActiveGiveaway, f.out.last().Response.Text)

	for _, eventID := range []giveaway.EventID{1, 2} {
		entry, err := f.repo.GetEntry(ctx, 10, eventID)
		require.NoError(t, err)
		assert.Nil(t, entry, "event %d", eventID)
	}

	conv, err := f.convs.Get(ctx, 10)
	require.NoError(t, err)
	assert.False(t, conv.Active())
}

func TestEntry_OpenEventFailureEndsConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 1, "Drop")

	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))
	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(2, presenter.CallbackAcceptTerms)))

	// A second active row makes the open event ambiguous.
	second, err := giveaway.NewEvent(2, "Dup", time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, f.repo.CreateEvent(ctx, second))

	handled, err := f.entry.Wallet(ctx, f.text(2, validWallet))
	assert.True(t, handled)
	require.Error(t, err)
	assert.True(t, shared.IsDataIntegrity(err))
	assert.Equal(t, presenter.TemporaryFailure, f.out.last().Response.Text)

	conv, err := f.convs.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, conv.Active())
}

func TestEntry_WalletOutsideConversation(t *testing.T) {
	f := newFixture(t)
	handled, err := f.entry.Wallet(context.Background(), f.text(2, validWallet))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, f.out.calls)
}

func TestEntry_RegisteredWithoutBotName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.entry.identity = staticIdentity("")
	f.openEvent(t, 1, "Drop")

	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))
	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(2, presenter.CallbackAcceptTerms)))
	_, err := f.entry.Wallet(ctx, f.text(2, validWallet))
	require.NoError(t, err)
	assert.Equal(t, presenter.RegisteredText(1, ""), f.out.last().Response.Text)
}

func TestEntry_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 1, "Drop")

	// Outside a conversation /cancel is silent.
	require.NoError(t, f.entry.Cancel(ctx, f.command(2, "cancel", "")))
	assert.Empty(t, f.out.calls)

	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))
	require.NoError(t, f.entry.Cancel(ctx, f.command(2, "cancel", "")))
	assert.Equal(t, presenter.RegistrationCancel, f.out.last().Response.Text)

	handled, err := f.entry.Wallet(ctx, f.text(2, validWallet))
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestEntry_EnterRestartsConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 1, "Drop")

	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))
	require.NoError(t, f.entry.AcceptTerms(ctx, f.callback(2, presenter.CallbackAcceptTerms)))
	require.NoError(t, f.entry.Enter(ctx, f.command(2, "enter", "")))

	conv, err := f.convs.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, giveaway.StepTerms, conv.Step)
}

func TestAccount_Balance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.account.Balance(ctx, f.command(2, "balance", "")))
	assert.Equal(t, presenter.NoActiveEventHint, f.out.last().Response.Text)

	f.openEvent(t, 1, "Drop")
	require.NoError(t, f.account.Balance(ctx, f.command(2, "balance", "")))
	assert.Equal(t, "You have not joined Drop yet. Use /enter.", f.out.last().Response.Text)

	require.NoError(t, f.repo.InsertEntry(ctx, &giveaway.Entry{UserID: 2, EventID: 1, WalletAddress: validWallet}))
	require.NoError(t, f.repo.IncrementReferral(ctx, 2, 1))
	require.NoError(t, f.account.Balance(ctx, f.command(2, "balance", "")))
	assert.Equal(t,
		"Current event: Drop\nWallet: "+validWallet+"\nReferrals: 1\nTotal tickets: 2\n\nYour link: https://t.me/AmazoBot?start=2",
		f.out.last().Response.Text)
}

func TestAccount_LeaderboardAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.account.Leaderboard(ctx, f.callback(2, presenter.CallbackShowBoard)))
	assert.Equal(t, presenter.NoActiveEvent, f.out.last().Response.Text)

	f.openEvent(t, 1, "Drop")
	require.NoError(t, f.account.Leaderboard(ctx, f.command(2, "leaderboard", "")))
	assert.Equal(t, presenter.LeaderboardEmpty, f.out.last().Response.Text)

	require.NoError(t, f.repo.InsertEntry(ctx, &giveaway.Entry{UserID: 2, EventID: 1, Username: "user2"}))
	require.NoError(t, f.account.Leaderboard(ctx, f.command(2, "leaderboard", "")))
	assert.Equal(t, "Top referrers: Drop\n\n1. @user2 - 0 referrals", f.out.last().Response.Text)

	require.NoError(t, f.account.History(ctx, f.command(3, "history", "")))
	assert.Equal(t, presenter.HistoryEmpty, f.out.last().Response.Text)

	require.NoError(t, f.account.History(ctx, f.command(2, "history", "")))
	assert.Equal(t, "Your Amazo-World history\n\n- Drop (Active): 0 referrals", f.out.last().Response.Text)

	require.NoError(t, f.account.FAQ(ctx, f.callback(2, presenter.CallbackShowFAQ)))
	assert.Equal(t, presenter.FAQ, f.out.last().Response.Text)
}

func TestAdmin_DashboardAndNewEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.admin.Dashboard(ctx, f.command(9, "admin", "")))
	assert.Equal(t, presenter.AdminNoActiveEvent, f.out.last().Response.Text)

	require.NoError(t, f.admin.NewEvent(ctx, f.command(9, "new_event", "3 | Summer Drop | 2026-07-01")))
	assert.Equal(t, "Event #3 'Summer Drop' is live until 2026-07-01.", f.out.last().Response.Text)

	require.NoError(t, f.repo.InsertEntry(ctx, &giveaway.Entry{UserID: 2, EventID: 3}))
	require.NoError(t, f.repo.InsertEntry(ctx, &giveaway.Entry{UserID: 4, EventID: 3}))
	require.NoError(t, f.repo.IncrementReferral(ctx, 2, 3))

	require.NoError(t, f.admin.Dashboard(ctx, f.command(9, "admin", "")))
	assert.Equal(t,
		"ADMIN DASHBOARD\nCurrent: Summer Drop (ID: 3)\nParticipants: 2\nReferrals: 1\nTotal tickets: 3",
		f.out.last().Response.Text)

	for _, args := range []string{"", "x | Name | 2026-07-01", "4 | Name", "4 |  | 2026-07-01", "4 | Name | 07/01/2026"} {
		require.NoError(t, f.admin.NewEvent(ctx, f.command(9, "new_event", args)))
		assert.Equal(t, presenter.NewEventUsage, f.out.last().Response.Text, args)
	}

	require.NoError(t, f.admin.NewEvent(ctx, f.command(9, "new_event", "3 | Again | 2026-08-01")))
	assert.Equal(t, presenter.EventExistsText(3), f.out.last().Response.Text)
}

func TestAdmin_Pick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.admin.Pick(ctx, f.command(9, "pick", "")))
	assert.Equal(t, presenter.PickUsage, f.out.last().Response.Text)

	require.NoError(t, f.admin.Pick(ctx, f.command(9, "pick", "one")))
	assert.Equal(t, presenter.PickBadID, f.out.last().Response.Text)

	// The in-memory store has no draw procedure.
	err := f.admin.Pick(ctx, f.command(9, "pick", "1"))
	require.Error(t, err)
	assert.Equal(t, presenter.PickFailed, f.out.last().Response.Text)
}

func TestAdmin_PickLogsDrawOnce(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	repo := memory.NewGiveawayRepository(func(entries []giveaway.Entry) []giveaway.Winner {
		return []giveaway.Winner{{Username: entries[0].Username, WalletAddress: entries[0].WalletAddress}}
	})
	require.NoError(t, repo.CreateEvent(ctx, &giveaway.Event{ID: 1, Name: "Drop", EndDate: "2026-03-31T23:59:59Z", IsActive: true}))
	require.NoError(t, repo.InsertEntry(ctx, &giveaway.Entry{UserID: 2, EventID: 1, Username: "alice", WalletAddress: validWallet}))

	out := &recorder{}
	admin := NewAdminHandler(AdminConfig{
		Ledger: app.NewLedger(repo, app.LedgerConfig{Logger: logger}),
	})
	req := &Request{UserID: 9, ChatID: 9, Command: "pick", Args: "1", Responder: out}

	require.NoError(t, admin.Pick(ctx, req))
	assert.Contains(t, out.last().Response.Text, "@alice - "+validWallet)
	assert.Equal(t, 1, strings.Count(logs.String(), "winners drawn"))
}

func TestAdmin_Broadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openEvent(t, 1, "Drop")
	require.NoError(t, f.repo.InsertEntry(ctx, &giveaway.Entry{UserID: 2, EventID: 1}))
	require.NoError(t, f.repo.InsertEntry(ctx, &giveaway.Entry{UserID: 3, EventID: 1}))
	f.sender.fail[3] = true

	var sent, failed int
	f.admin.onBroadcast = func(s, fl int) { sent, failed = s, fl }

	require.NoError(t, f.admin.Broadcast(ctx, f.command(9, "broadcast", "  ")))
	assert.Equal(t, presenter.BroadcastUsage, f.out.last().Response.Text)

	f.out.reset()
	require.NoError(t, f.admin.Broadcast(ctx, f.command(9, "broadcast", "Winners announced soon")))
	assert.Equal(t, []string{
		"Broadcasting to 2 users...",
		"Broadcast done.\nSent: 1\nFailed: 1",
	}, f.out.texts())
	assert.Equal(t, "AMAZO-WORLD UPDATE\n\nWinners announced soon", f.sender.got[2])
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, failed)
}

func TestRequest_ReplyFromCallbackAnswersFirst(t *testing.T) {
	f := newFixture(t)
	req := f.callback(2, presenter.CallbackShowFAQ)
	require.NoError(t, req.ReplyText(context.Background(), "hi"))
	require.Len(t, f.out.calls, 2)
	assert.Equal(t, "answer", f.out.calls[0].Kind)
	assert.Equal(t, "send", f.out.calls[1].Kind)
}
