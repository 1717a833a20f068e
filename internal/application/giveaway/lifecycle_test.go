package giveaway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLifecycle_OpenEvent(t *testing.T) {
	ctx := context.Background()
	endDate := "2025-05-20T23:59:59Z"

	tests := []struct {
		name       string
		now        time.Time
		wantOpen   bool
		wantWrites int
		wantActive bool
	}{
		{
			name:       "well before end",
			now:        time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
			wantOpen:   true,
			wantWrites: 0,
			wantActive: true,
		},
		{
			name:       "exactly at threshold is still open",
			now:        time.Date(2025, time.May, 20, 23, 59, 59, 0, time.UTC),
			wantOpen:   true,
			wantWrites: 0,
			wantActive: true,
		},
		{
			name:       "one second past threshold closes",
			now:        time.Date(2025, time.May, 21, 0, 0, 0, 0, time.UTC),
			wantOpen:   false,
			wantWrites: 1,
			wantActive: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.addEvent(giveaway.Event{ID: 1, Name: "Drop", EndDate: endDate, IsActive: true})
			lc := NewLifecycle(store, fixedClock(tt.now), discardLogger())

			event, err := lc.OpenEvent(ctx)
			require.NoError(t, err)
			if tt.wantOpen {
				require.NotNil(t, event)
				assert.Equal(t, giveaway.EventID(1), event.ID)
			} else {
				assert.Nil(t, event)
			}
			assert.Equal(t, tt.wantWrites, store.setActiveCalls)
			assert.Equal(t, tt.wantActive, store.event(1).IsActive)
		})
	}
}

func TestLifecycle_OpenEvent_NoActiveEvent(t *testing.T) {
	store := newMemStore()
	store.addEvent(giveaway.Event{ID: 1, Name: "Old", EndDate: "2020-01-01T23:59:59Z", IsActive: false})
	lc := NewLifecycle(store, fixedClock(time.Now()), discardLogger())

	event, err := lc.OpenEvent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Zero(t, store.setActiveCalls)
}

func TestLifecycle_OpenEvent_ExpiredStaysClosed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent(giveaway.Event{ID: 4, Name: "Past", EndDate: "2025-01-01T23:59:59Z", IsActive: true})
	lc := NewLifecycle(store, fixedClock(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)), discardLogger())

	first, err := lc.OpenEvent(ctx)
	require.NoError(t, err)
	assert.Nil(t, first)

	second, err := lc.OpenEvent(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, 1, store.setActiveCalls)
}

func TestLifecycle_OpenEvent_MalformedEndDate(t *testing.T) {
	store := newMemStore()
	store.addEvent(giveaway.Event{ID: 2, Name: "Broken", EndDate: "next friday", IsActive: true})
	lc := NewLifecycle(store, fixedClock(time.Now()), discardLogger())

	event, err := lc.OpenEvent(context.Background())
	require.Error(t, err)
	assert.Nil(t, event)
	assert.True(t, shared.IsDataIntegrity(err))
	assert.False(t, shared.IsTransient(err))
	assert.Zero(t, store.setActiveCalls)
}

func TestLifecycle_OpenEvent_MultipleActive(t *testing.T) {
	store := newMemStore()
	store.addEvent(giveaway.Event{ID: 1, Name: "A", EndDate: "2099-01-01T23:59:59Z", IsActive: true})
	store.addEvent(giveaway.Event{ID: 2, Name: "B", EndDate: "2099-01-01T23:59:59Z", IsActive: true})
	lc := NewLifecycle(store, nil, discardLogger())

	_, err := lc.OpenEvent(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsDataIntegrity(err))
}

func TestLifecycle_OpenEvent_StoreUnavailable(t *testing.T) {
	store := newMemStore()
	store.fetchErr = shared.WrapError("store", "FetchActiveEvent", shared.ErrStoreUnavailable, "dial failed", errors.New("connection refused"))
	lc := NewLifecycle(store, nil, discardLogger())

	_, err := lc.OpenEvent(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))
	assert.False(t, shared.IsDataIntegrity(err))
}
