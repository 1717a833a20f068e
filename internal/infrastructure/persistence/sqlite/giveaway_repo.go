package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

// GiveawayRepository implements giveaway.Repository and
// giveaway.AtomicRegistrar on SQLite.
type GiveawayRepository struct {
	store  *Store
	drawer giveaway.Drawer
	now    func() time.Time
}

var (
	_ giveaway.Repository      = (*GiveawayRepository)(nil)
	_ giveaway.AtomicRegistrar = (*GiveawayRepository)(nil)
)

// NewGiveawayRepository creates a repository over an open store.
// SQLite has no draw procedure; drawer may be nil, in which case
// DrawWinners returns shared.ErrDrawUnsupported.
func NewGiveawayRepository(store *Store, drawer giveaway.Drawer) *GiveawayRepository {
	return &GiveawayRepository{
		store:  store,
		drawer: drawer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *GiveawayRepository) db(ctx context.Context) *gorm.DB {
	return r.store.db.WithContext(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

// FetchActiveEvent returns the active event, or nil if there is none.
func (r *GiveawayRepository) FetchActiveEvent(ctx context.Context) (*giveaway.Event, error) {
	var rows []eventRow
	if err := r.db(ctx).Where("is_active").Limit(2).Find(&rows).Error; err != nil {
		return nil, classify("FetchActiveEvent", err)
	}

	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0].toDomain(), nil
	default:
		return nil, shared.ErrMultipleOpenEvents
	}
}

// SetEventActive sets the active flag of one event.
func (r *GiveawayRepository) SetEventActive(ctx context.Context, eventID giveaway.EventID, active bool) error {
	err := r.db(ctx).Model(&eventRow{}).Where("id = ?", int64(eventID)).Update("is_active", active).Error
	return classify("SetEventActive", err)
}

// DeactivateAllEvents clears the active flag on every event.
func (r *GiveawayRepository) DeactivateAllEvents(ctx context.Context) error {
	err := r.db(ctx).Model(&eventRow{}).Where("is_active").Update("is_active", false).Error
	return classify("DeactivateAllEvents", err)
}

// CreateEvent inserts a new event.
func (r *GiveawayRepository) CreateEvent(ctx context.Context, event *giveaway.Event) error {
	row := eventRow{
		ID:        int64(event.ID),
		Name:      event.Name,
		EndDate:   event.EndDate,
		IsActive:  event.IsActive,
		CreatedAt: r.now(),
	}
	if err := r.db(ctx).Create(&row).Error; err != nil {
		var existing int64
		if IsUniqueViolation(err) && r.db(ctx).Model(&eventRow{}).Where("id = ?", row.ID).Count(&existing).Error == nil && existing > 0 {
			return shared.WrapError("store", "CreateEvent", shared.ErrEventExists, "duplicate event ID", err)
		}
		return classify("CreateEvent", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Entries
// ─────────────────────────────────────────────────────────────────────────────

// InsertEntry inserts a new entry with zero referrals.
func (r *GiveawayRepository) InsertEntry(ctx context.Context, entry *giveaway.Entry) error {
	return r.db(ctx).Transaction(func(tx *gorm.DB) error {
		return r.insertEntry(tx, entry)
	})
}

func (r *GiveawayRepository) insertEntry(tx *gorm.DB, entry *giveaway.Entry) error {
	var events int64
	if err := tx.Model(&eventRow{}).Where("id = ?", int64(entry.EventID)).Count(&events).Error; err != nil {
		return classify("InsertEntry", err)
	}
	if events == 0 {
		return shared.WrapError("store", "InsertEntry", shared.ErrDataIntegrity,
			fmt.Sprintf("event %d does not exist", entry.EventID), nil)
	}

	row := entryRow{
		UserID:        int64(entry.UserID),
		EventID:       int64(entry.EventID),
		Username:      entry.Username,
		WalletAddress: entry.WalletAddress,
		ReferredBy:    nullableUserID(entry.ReferredBy),
		CreatedAt:     r.now(),
	}
	if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
		switch {
		case IsUniqueViolation(err):
			return shared.WrapError("store", "InsertEntry", shared.ErrAlreadyRegistered, "duplicate entry", err)
		case IsForeignKeyViolation(err):
			return shared.WrapError("store", "InsertEntry", shared.ErrDataIntegrity,
				fmt.Sprintf("event %d does not exist", entry.EventID), err)
		}
		return classify("InsertEntry", err)
	}

	entry.ReferralCount = 0
	entry.CreatedAt = row.CreatedAt
	return nil
}

// IncrementReferral adds one referral to the referrer's entry in the event.
// A missing entry updates nothing and is not an error.
func (r *GiveawayRepository) IncrementReferral(ctx context.Context, referrerID giveaway.UserID, eventID giveaway.EventID) error {
	return incrementReferral(r.db(ctx), referrerID, eventID)
}

func incrementReferral(tx *gorm.DB, referrerID giveaway.UserID, eventID giveaway.EventID) error {
	err := tx.Model(&entryRow{}).
		Where("user_id = ? AND event_id = ?", int64(referrerID), int64(eventID)).
		Update("referral_count", gorm.Expr("referral_count + 1")).Error
	return classify("IncrementReferral", err)
}

// InsertEntryWithReferral inserts the entry and credits its referrer in one
// transaction. The credit row is keyed by the new entry and is written only
// when the referrer holds an entry in the same event.
func (r *GiveawayRepository) InsertEntryWithReferral(ctx context.Context, entry *giveaway.Entry) error {
	return r.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.insertEntry(tx, entry); err != nil {
			return err
		}
		if entry.ReferredBy == nil {
			return nil
		}

		var referrer int64
		err := tx.Model(&entryRow{}).
			Where("user_id = ? AND event_id = ?", int64(*entry.ReferredBy), int64(entry.EventID)).
			Count(&referrer).Error
		if err != nil {
			return classify("CreditReferral", err)
		}
		if referrer == 0 {
			return nil
		}

		credit := creditRow{
			ReferredUserID: int64(entry.UserID),
			EventID:        int64(entry.EventID),
			ReferrerID:     int64(*entry.ReferredBy),
			CreatedAt:      r.now(),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&credit)
		if res.Error != nil {
			return classify("CreditReferral", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return incrementReferral(tx, *entry.ReferredBy, entry.EventID)
	})
}

// GetEntry returns the entry for (user, event), or nil if absent.
func (r *GiveawayRepository) GetEntry(ctx context.Context, userID giveaway.UserID, eventID giveaway.EventID) (*giveaway.Entry, error) {
	var row entryRow
	err := r.db(ctx).
		Where("user_id = ? AND event_id = ?", int64(userID), int64(eventID)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("GetEntry", err)
	}
	return row.toDomain(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregates
// ─────────────────────────────────────────────────────────────────────────────

// GetStandings returns up to limit entries by referral count, descending.
// Ties come back in registration order.
func (r *GiveawayRepository) GetStandings(ctx context.Context, eventID giveaway.EventID, limit int) ([]giveaway.Standing, error) {
	var standings []giveaway.Standing
	err := r.db(ctx).Model(&entryRow{}).
		Select("username, referral_count").
		Where("event_id = ?", int64(eventID)).
		Order("referral_count DESC").
		Order("created_at").
		Limit(limit).
		Scan(&standings).Error
	if err != nil {
		return nil, classify("GetStandings", err)
	}
	return standings, nil
}

// GetParticipantCount returns the number of entries in the event.
func (r *GiveawayRepository) GetParticipantCount(ctx context.Context, eventID giveaway.EventID) (int, error) {
	var n int64
	if err := r.db(ctx).Model(&entryRow{}).Where("event_id = ?", int64(eventID)).Count(&n).Error; err != nil {
		return 0, classify("GetParticipantCount", err)
	}
	return int(n), nil
}

// SumReferralCounts returns the sum of referral counts in the event.
func (r *GiveawayRepository) SumReferralCounts(ctx context.Context, eventID giveaway.EventID) (int, error) {
	var n int
	err := r.db(ctx).Model(&entryRow{}).
		Select("COALESCE(SUM(referral_count), 0)").
		Where("event_id = ?", int64(eventID)).
		Scan(&n).Error
	if err != nil {
		return 0, classify("SumReferralCounts", err)
	}
	return n, nil
}

type historyRow struct {
	EventID       int64
	Name          *string
	IsActive      *bool
	ReferralCount int
}

// GetUserHistory returns one item per entry the user holds.
// An entry whose event row is missing is a data integrity error.
func (r *GiveawayRepository) GetUserHistory(ctx context.Context, userID giveaway.UserID) ([]giveaway.HistoryItem, error) {
	var rows []historyRow
	err := r.db(ctx).Table("entries AS e").
		Select("e.event_id, g.name, g.is_active, e.referral_count").
		Joins("LEFT JOIN giveaways g ON g.id = e.event_id").
		Where("e.user_id = ?", int64(userID)).
		Order("e.created_at, e.event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, classify("GetUserHistory", err)
	}

	items := make([]giveaway.HistoryItem, 0, len(rows))
	for _, row := range rows {
		if row.Name == nil || row.IsActive == nil {
			return nil, shared.WrapError("store", "GetUserHistory", shared.ErrOrphanEntry,
				fmt.Sprintf("entry of user %d references missing event %d", userID, row.EventID), nil)
		}
		items = append(items, giveaway.HistoryItem{
			EventID:       giveaway.EventID(row.EventID),
			EventName:     *row.Name,
			IsActive:      *row.IsActive,
			ReferralCount: row.ReferralCount,
		})
	}
	return items, nil
}

// ListAllParticipantIDs returns the distinct users holding any entry.
func (r *GiveawayRepository) ListAllParticipantIDs(ctx context.Context) ([]giveaway.UserID, error) {
	var raw []int64
	if err := r.db(ctx).Model(&entryRow{}).Distinct().Order("user_id").Pluck("user_id", &raw).Error; err != nil {
		return nil, classify("ListAllParticipantIDs", err)
	}

	ids := make([]giveaway.UserID, len(raw))
	for i, id := range raw {
		ids[i] = giveaway.UserID(id)
	}
	return ids, nil
}

// DrawWinners hands the event's entries to the configured Drawer.
func (r *GiveawayRepository) DrawWinners(ctx context.Context, eventID giveaway.EventID) ([]giveaway.Winner, error) {
	if r.drawer == nil {
		return nil, shared.ErrDrawUnsupported
	}

	var rows []entryRow
	err := r.db(ctx).Where("event_id = ?", int64(eventID)).Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, classify("DrawWinners", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	entries := make([]giveaway.Entry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].toDomain()
	}
	return r.drawer(entries), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Mapping
// ─────────────────────────────────────────────────────────────────────────────

func (e eventRow) toDomain() *giveaway.Event {
	return &giveaway.Event{
		ID:       giveaway.EventID(e.ID),
		Name:     e.Name,
		EndDate:  e.EndDate,
		IsActive: e.IsActive,
	}
}

func (e entryRow) toDomain() *giveaway.Entry {
	entry := &giveaway.Entry{
		UserID:        giveaway.UserID(e.UserID),
		EventID:       giveaway.EventID(e.EventID),
		Username:      e.Username,
		WalletAddress: e.WalletAddress,
		ReferralCount: e.ReferralCount,
		CreatedAt:     e.CreatedAt.UTC(),
	}
	if e.ReferredBy != nil {
		ref := giveaway.UserID(*e.ReferredBy)
		entry.ReferredBy = &ref
	}
	return entry
}

func nullableUserID(id *giveaway.UserID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}
