package giveaway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

func TestParseCreateEventArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    CreateEventInput
		wantErr bool
	}{
		{
			name: "well formed",
			args: "3 | Summer Drop | 2025-08-31",
			want: CreateEventInput{ID: 3, Name: "Summer Drop", EndDate: "2025-08-31"},
		},
		{
			name: "no spaces",
			args: "4|X|2025-01-01",
			want: CreateEventInput{ID: 4, Name: "X", EndDate: "2025-01-01"},
		},
		{name: "missing date", args: "3 | Summer", wantErr: true},
		{name: "non numeric id", args: "three | Summer | 2025-08-31", wantErr: true},
		{name: "empty", args: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCreateEventArgs(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, shared.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdmin_CreateEvent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent(giveaway.Event{ID: 1, Name: "Old", EndDate: "2099-01-01T23:59:59Z", IsActive: true})
	admin := NewAdmin(store, discardLogger())

	event, err := admin.CreateEvent(ctx, CreateEventInput{ID: 2, Name: "New", EndDate: "2025-06-30"})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-30T23:59:59Z", event.EndDate)
	assert.True(t, event.IsActive)

	assert.False(t, store.event(1).IsActive)
	assert.True(t, store.event(2).IsActive)

	lc := NewLifecycle(store, fixedClock(time.Date(2025, time.June, 30, 12, 0, 0, 0, time.UTC)), discardLogger())
	open, err := lc.OpenEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, giveaway.EventID(2), open.ID)
}

func TestAdmin_CreateEvent_DuplicateID(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent(giveaway.Event{ID: 5, Name: "Taken", EndDate: "2099-01-01T23:59:59Z", IsActive: true})
	admin := NewAdmin(store, discardLogger())

	_, err := admin.CreateEvent(ctx, CreateEventInput{ID: 5, Name: "Again", EndDate: "2025-06-30"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrEventExists))
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Equal(t, "Taken", store.event(5).Name)
}

func TestAdmin_CreateEvent_Validation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addEvent(giveaway.Event{ID: 1, Name: "Live", EndDate: "2099-01-01T23:59:59Z", IsActive: true})
	admin := NewAdmin(store, discardLogger())

	inputs := []CreateEventInput{
		{ID: 0, Name: "Zero", EndDate: "2025-06-30"},
		{ID: 2, Name: " ", EndDate: "2025-06-30"},
		{ID: 2, Name: "Bad date", EndDate: "30/06/2025"},
		{ID: 2, Name: "No date"},
	}
	for _, in := range inputs {
		_, err := admin.CreateEvent(ctx, in)
		require.Error(t, err, "%+v", in)
		assert.True(t, shared.IsValidation(err), "%+v", in)
	}

	assert.True(t, store.event(1).IsActive, "validation failures must not deactivate the live event")
}
