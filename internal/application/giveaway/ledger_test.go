package giveaway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

const testEvent giveaway.EventID = 10

func wallet(n int) string {
	return strings.Repeat("a", n)
}

func newTestLedger(repo giveaway.Repository) *Ledger {
	return NewLedger(repo, LedgerConfig{Logger: discardLogger()})
}

func register(t *testing.T, l *Ledger, user giveaway.UserID, referrer *giveaway.UserID) *giveaway.Entry {
	t.Helper()
	entry, err := l.RegisterEntry(context.Background(), RegisterEntryInput{
		UserID:        user,
		EventID:       testEvent,
		Username:      "",
		WalletAddress: wallet(42),
		ReferrerID:    referrer,
	})
	require.NoError(t, err)
	return entry
}

func TestLedger_RegisterEntry_WalletBounds(t *testing.T) {
	tests := []struct {
		name    string
		wallet  string
		wantErr bool
	}{
		{"below minimum", wallet(29), true},
		{"minimum", wallet(30), false},
		{"maximum", wallet(50), false},
		{"above maximum", wallet(51), true},
		{"trimmed to minimum", "  " + wallet(30) + "\n", false},
		{"empty", "", true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			l := newTestLedger(store)

			_, err := l.RegisterEntry(context.Background(), RegisterEntryInput{
				UserID:        giveaway.UserID(100 + i),
				EventID:       testEvent,
				WalletAddress: tt.wallet,
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, shared.IsValidation(err))
				assert.True(t, errors.Is(err, shared.ErrInvalidWallet))
				n, _ := store.GetParticipantCount(context.Background(), testEvent)
				assert.Zero(t, n)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLedger_RegisterEntry_ConfigurableBounds(t *testing.T) {
	l := NewLedger(newMemStore(), LedgerConfig{WalletMinLength: 5, WalletMaxLength: 8, Logger: discardLogger()})
	_, err := l.RegisterEntry(context.Background(), RegisterEntryInput{UserID: 1, EventID: testEvent, WalletAddress: "12345"})
	assert.NoError(t, err)
	_, err = l.RegisterEntry(context.Background(), RegisterEntryInput{UserID: 2, EventID: testEvent, WalletAddress: "123456789"})
	assert.True(t, errors.Is(err, shared.ErrInvalidWallet))
}

func TestLedger_RegisterEntry_Snapshot(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)

	entry, err := l.RegisterEntry(context.Background(), RegisterEntryInput{
		UserID:        7,
		EventID:       testEvent,
		Username:      "alice",
		WalletAddress: "  " + wallet(40) + " ",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, wallet(40), entry.WalletAddress)
	assert.Nil(t, entry.ReferredBy)

	stored, err := l.Entry(context.Background(), 7, testEvent)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 0, stored.ReferralCount)
	assert.Equal(t, 1, stored.TotalTickets())

	anonymous := register(t, l, 8, nil)
	assert.Equal(t, "User_8", anonymous.Username)
}

func TestLedger_RegisterEntry_Duplicate(t *testing.T) {
	for _, atomic := range []bool{false, true} {
		var repo giveaway.Repository = newMemStore()
		if atomic {
			repo = &atomicStore{memStore: newMemStore()}
		}
		l := newTestLedger(repo)
		register(t, l, 1, nil)

		_, err := l.RegisterEntry(context.Background(), RegisterEntryInput{
			UserID:        1,
			EventID:       testEvent,
			WalletAddress: wallet(35),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrAlreadyRegistered))
		assert.True(t, shared.IsAlreadyExists(err))
		assert.False(t, shared.IsValidation(err))

		n, _ := repo.GetParticipantCount(context.Background(), testEvent)
		assert.Equal(t, 1, n)
	}
}

func TestLedger_RegisterEntry_SelfReferralDropped(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)

	entry := register(t, l, 5, userPtr(5))
	assert.Nil(t, entry.ReferredBy)
	assert.Zero(t, store.incrementCalls)

	got, _ := l.Entry(context.Background(), 5, testEvent)
	assert.Equal(t, 0, got.ReferralCount)
}

func TestLedger_RegisterEntry_InvalidReferrerDropped(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)

	entry := register(t, l, 5, userPtr(-3))
	assert.Nil(t, entry.ReferredBy)
	assert.Zero(t, store.incrementCalls)
}

func TestLedger_RegisterEntry_ReferralCredit(t *testing.T) {
	for _, atomic := range []bool{false, true} {
		name := "two-step"
		var repo giveaway.Repository
		mem := newMemStore()
		repo = mem
		if atomic {
			name = "atomic"
			repo = &atomicStore{memStore: mem}
		}

		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newTestLedger(repo)

			register(t, l, 1, nil)
			register(t, l, 2, userPtr(1))
			register(t, l, 3, userPtr(1))

			referrer, err := l.Entry(ctx, 1, testEvent)
			require.NoError(t, err)
			assert.Equal(t, 2, referrer.ReferralCount)
			assert.Equal(t, 3, referrer.TotalTickets())

			referred, err := l.Entry(ctx, 2, testEvent)
			require.NoError(t, err)
			require.NotNil(t, referred.ReferredBy)
			assert.Equal(t, giveaway.UserID(1), *referred.ReferredBy)
			assert.Equal(t, 0, referred.ReferralCount)

			if a, ok := repo.(*atomicStore); ok {
				assert.Equal(t, 3, a.atomicCalls)
				assert.Zero(t, mem.incrementCalls)
			} else {
				assert.Equal(t, 2, mem.incrementCalls)
			}
		})
	}
}

func TestLedger_RegisterEntry_ReferrerNotRegistered(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)

	entry := register(t, l, 2, userPtr(99))
	require.NotNil(t, entry.ReferredBy)
	assert.Equal(t, 1, store.incrementCalls)

	missing, err := l.Entry(context.Background(), 99, testEvent)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLedger_RegisterEntry_ReferralScopedToEvent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)

	_, err := l.RegisterEntry(ctx, RegisterEntryInput{UserID: 1, EventID: 11, WalletAddress: wallet(40)})
	require.NoError(t, err)
	register(t, l, 2, userPtr(1))

	other, err := l.Entry(ctx, 1, 11)
	require.NoError(t, err)
	assert.Equal(t, 0, other.ReferralCount)
}

func TestLedger_RegisterEntry_IncrementFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	register(t, l, 1, nil)

	store.incrementErr = shared.WrapError("store", "IncrementReferral", shared.ErrStoreUnavailable, "timeout", nil)
	entry, err := l.RegisterEntry(ctx, RegisterEntryInput{
		UserID:        2,
		EventID:       testEvent,
		WalletAddress: wallet(40),
		ReferrerID:    userPtr(1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrReferralNotCounted))
	assert.True(t, shared.IsTransient(err))
	require.NotNil(t, entry)

	saved, _ := l.Entry(ctx, 2, testEvent)
	assert.NotNil(t, saved)
	referrer, _ := l.Entry(ctx, 1, testEvent)
	assert.Equal(t, 0, referrer.ReferralCount)
}

func TestLedger_RegisterEntry_InvalidIDs(t *testing.T) {
	l := newTestLedger(newMemStore())

	_, err := l.RegisterEntry(context.Background(), RegisterEntryInput{UserID: 0, EventID: testEvent, WalletAddress: wallet(40)})
	assert.True(t, shared.IsValidation(err))

	_, err = l.RegisterEntry(context.Background(), RegisterEntryInput{UserID: 1, EventID: 0, WalletAddress: wallet(40)})
	assert.True(t, shared.IsValidation(err))
}

func TestLedger_Standings(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)

	register(t, l, 1, nil)
	register(t, l, 2, nil)
	register(t, l, 3, userPtr(2))
	register(t, l, 4, userPtr(2))
	register(t, l, 5, userPtr(1))

	standings, err := l.Standings(ctx, testEvent, 2)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, "User_2", standings[0].Username)
	assert.Equal(t, 2, standings[0].ReferralCount)
	assert.Equal(t, 1, standings[1].ReferralCount)

	all, err := l.Standings(ctx, testEvent, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].ReferralCount, all[i].ReferralCount)
	}

	empty, err := l.Standings(ctx, 999, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedger_Stats(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)

	register(t, l, 1, nil)
	register(t, l, 2, userPtr(1))
	register(t, l, 3, userPtr(1))
	register(t, l, 4, userPtr(2))

	stats, err := l.Stats(ctx, &giveaway.Event{ID: testEvent})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Participants)
	assert.Equal(t, 3, stats.Referrals)
	assert.Equal(t, 7, stats.TotalTickets())

	tickets := 0
	for _, id := range []giveaway.UserID{1, 2, 3, 4} {
		e, _ := l.Entry(ctx, id, testEvent)
		tickets += e.TotalTickets()
	}
	assert.Equal(t, stats.TotalTickets(), tickets)
}

func TestLedger_History(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent(giveaway.Event{ID: 1, Name: "Winter", EndDate: "2024-12-31T23:59:59Z", IsActive: false})
	store.addEvent(giveaway.Event{ID: 2, Name: "Spring", EndDate: "2099-03-31T23:59:59Z", IsActive: true})
	l := newTestLedger(store)

	for _, ev := range []giveaway.EventID{1, 2} {
		_, err := l.RegisterEntry(ctx, RegisterEntryInput{UserID: 9, EventID: ev, WalletAddress: wallet(40)})
		require.NoError(t, err)
	}
	_, err := l.RegisterEntry(ctx, RegisterEntryInput{UserID: 10, EventID: 2, WalletAddress: wallet(40), ReferrerID: userPtr(9)})
	require.NoError(t, err)

	items, err := l.History(ctx, 9)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, giveaway.HistoryItem{EventID: 1, EventName: "Winter", IsActive: false, ReferralCount: 0}, items[0])
	assert.Equal(t, giveaway.HistoryItem{EventID: 2, EventName: "Spring", IsActive: true, ReferralCount: 1}, items[1])

	none, err := l.History(ctx, 12345)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedger_History_OrphanEntry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)
	register(t, l, 1, nil)

	_, err := l.History(ctx, 1)
	require.Error(t, err)
	assert.True(t, shared.IsDataIntegrity(err))
}

func TestLedger_DrawWinners(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.winners[testEvent] = []giveaway.Winner{{Username: "alice", WalletAddress: wallet(40)}}
	l := newTestLedger(store)

	winners, err := l.DrawWinners(ctx, testEvent)
	require.NoError(t, err)
	assert.Len(t, winners, 1)

	none, err := l.DrawWinners(ctx, 404)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestLedger_ParticipantIDs(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store)

	register(t, l, 1, nil)
	register(t, l, 2, nil)
	_, err := l.RegisterEntry(ctx, RegisterEntryInput{UserID: 1, EventID: 11, WalletAddress: wallet(40)})
	require.NoError(t, err)

	ids, err := l.ParticipantIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []giveaway.UserID{1, 2}, ids)
}
