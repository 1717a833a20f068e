package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GIVEAWAY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GiveawayRepository implements giveaway.Repository and
// giveaway.AtomicRegistrar for PostgreSQL.
type GiveawayRepository struct {
	conn *Connection
}

// NewGiveawayRepository creates a new GiveawayRepository.
func NewGiveawayRepository(conn *Connection) *GiveawayRepository {
	return &GiveawayRepository{conn: conn}
}

var (
	_ giveaway.Repository      = (*GiveawayRepository)(nil)
	_ giveaway.AtomicRegistrar = (*GiveawayRepository)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

// FetchActiveEvent returns the active event, or nil if there is none.
func (r *GiveawayRepository) FetchActiveEvent(ctx context.Context) (*giveaway.Event, error) {
	query := `
		SELECT id, name, end_date, is_active
		FROM giveaways
		WHERE is_active
		LIMIT 2
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, classify("FetchActiveEvent", err)
	}
	defer rows.Close()

	var events []*giveaway.Event
	for rows.Next() {
		var e giveaway.Event
		var id int64
		if err := rows.Scan(&id, &e.Name, &e.EndDate, &e.IsActive); err != nil {
			return nil, shared.WrapError("store", "FetchActiveEvent", shared.ErrDataIntegrity, "unreadable event row", err)
		}
		e.ID = giveaway.EventID(id)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("FetchActiveEvent", err)
	}

	switch len(events) {
	case 0:
		return nil, nil
	case 1:
		return events[0], nil
	default:
		return nil, shared.ErrMultipleOpenEvents
	}
}

// SetEventActive sets the active flag of one event.
func (r *GiveawayRepository) SetEventActive(ctx context.Context, eventID giveaway.EventID, active bool) error {
	query := `UPDATE giveaways SET is_active = $2 WHERE id = $1`

	if _, err := r.conn.Exec(ctx, query, int64(eventID), active); err != nil {
		return classify("SetEventActive", err)
	}
	return nil
}

// DeactivateAllEvents clears the active flag on every event.
func (r *GiveawayRepository) DeactivateAllEvents(ctx context.Context) error {
	query := `UPDATE giveaways SET is_active = FALSE WHERE is_active`

	if _, err := r.conn.Exec(ctx, query); err != nil {
		return classify("DeactivateAllEvents", err)
	}
	return nil
}

// CreateEvent inserts a new event.
func (r *GiveawayRepository) CreateEvent(ctx context.Context, event *giveaway.Event) error {
	query := `
		INSERT INTO giveaways (id, name, end_date, is_active)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.conn.Exec(ctx, query, int64(event.ID), event.Name, event.EndDate, event.IsActive)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("store", "CreateEvent", shared.ErrEventExists, "duplicate event ID", err)
		}
		return classify("CreateEvent", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Entries
// ─────────────────────────────────────────────────────────────────────────────

const insertEntryQuery = `
	INSERT INTO entries (user_id, event_id, username, wallet_address, referred_by)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING referral_count, created_at
`

// InsertEntry inserts a new entry with zero referrals.
func (r *GiveawayRepository) InsertEntry(ctx context.Context, entry *giveaway.Entry) error {
	return insertEntry(ctx, r.conn, entry)
}

func insertEntry(ctx context.Context, q Querier, entry *giveaway.Entry) error {
	err := q.QueryRow(ctx, insertEntryQuery,
		int64(entry.UserID),
		int64(entry.EventID),
		entry.Username,
		entry.WalletAddress,
		nullableUserID(entry.ReferredBy),
	).Scan(&entry.ReferralCount, &entry.CreatedAt)
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return shared.WrapError("store", "InsertEntry", shared.ErrAlreadyRegistered, "duplicate entry", err)
		case IsForeignKeyViolation(err):
			return shared.WrapError("store", "InsertEntry", shared.ErrDataIntegrity,
				fmt.Sprintf("event %d does not exist", entry.EventID), err)
		}
		return classify("InsertEntry", err)
	}
	return nil
}

// IncrementReferral adds one referral to the referrer's entry in the event.
// Zero affected rows means the referrer has no entry; that is not an error.
func (r *GiveawayRepository) IncrementReferral(ctx context.Context, referrerID giveaway.UserID, eventID giveaway.EventID) error {
	return incrementReferral(ctx, r.conn, referrerID, eventID)
}

func incrementReferral(ctx context.Context, q Querier, referrerID giveaway.UserID, eventID giveaway.EventID) error {
	query := `
		UPDATE entries
		SET referral_count = referral_count + 1
		WHERE user_id = $1 AND event_id = $2
	`

	if _, err := q.Exec(ctx, query, int64(referrerID), int64(eventID)); err != nil {
		return classify("IncrementReferral", err)
	}
	return nil
}

// InsertEntryWithReferral inserts the entry and credits its referrer in one
// transaction. The credit is recorded in referral_credits keyed by the new
// entry, and only when the referrer holds an entry in the same event.
func (r *GiveawayRepository) InsertEntryWithReferral(ctx context.Context, entry *giveaway.Entry) error {
	creditQuery := `
		INSERT INTO referral_credits (referred_user_id, event_id, referrer_id)
		SELECT $1::bigint, $2::bigint, $3::bigint
		WHERE EXISTS (SELECT 1 FROM entries WHERE user_id = $3 AND event_id = $2)
		ON CONFLICT (referred_user_id, event_id) DO NOTHING
	`

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		if entry.ReferredBy == nil {
			return nil
		}

		tag, err := tx.Exec(ctx, creditQuery, int64(entry.UserID), int64(entry.EventID), int64(*entry.ReferredBy))
		if err != nil {
			return classify("CreditReferral", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return incrementReferral(ctx, tx, *entry.ReferredBy, entry.EventID)
	})
	if err != nil {
		if shared.IsAlreadyExists(err) || shared.IsDataIntegrity(err) || shared.IsTransient(err) {
			return err
		}
		return classify("InsertEntryWithReferral", err)
	}
	return nil
}

// GetEntry returns the entry for (user, event), or nil if absent.
func (r *GiveawayRepository) GetEntry(ctx context.Context, userID giveaway.UserID, eventID giveaway.EventID) (*giveaway.Entry, error) {
	query := `
		SELECT user_id, event_id, username, wallet_address, referred_by, referral_count, created_at
		FROM entries
		WHERE user_id = $1 AND event_id = $2
	`

	var (
		e          giveaway.Entry
		uid, eid   int64
		referredBy *int64
	)
	err := r.conn.QueryRow(ctx, query, int64(userID), int64(eventID)).Scan(
		&uid, &eid, &e.Username, &e.WalletAddress, &referredBy, &e.ReferralCount, &e.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, classify("GetEntry", err)
	}

	e.UserID = giveaway.UserID(uid)
	e.EventID = giveaway.EventID(eid)
	if referredBy != nil {
		ref := giveaway.UserID(*referredBy)
		e.ReferredBy = &ref
	}
	return &e, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregates
// ─────────────────────────────────────────────────────────────────────────────

// GetStandings returns up to limit entries ordered by referral count, descending.
// Equal counts come back in whatever order Postgres produces.
func (r *GiveawayRepository) GetStandings(ctx context.Context, eventID giveaway.EventID, limit int) ([]giveaway.Standing, error) {
	query := `
		SELECT username, referral_count
		FROM entries
		WHERE event_id = $1
		ORDER BY referral_count DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, int64(eventID), limit)
	if err != nil {
		return nil, classify("GetStandings", err)
	}

	standings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (giveaway.Standing, error) {
		var s giveaway.Standing
		err := row.Scan(&s.Username, &s.ReferralCount)
		return s, err
	})
	if err != nil {
		return nil, classify("GetStandings", err)
	}
	return standings, nil
}

// GetParticipantCount returns the number of entries in the event.
func (r *GiveawayRepository) GetParticipantCount(ctx context.Context, eventID giveaway.EventID) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM entries WHERE event_id = $1`, int64(eventID)).Scan(&n)
	if err != nil {
		return 0, classify("GetParticipantCount", err)
	}
	return n, nil
}

// SumReferralCounts returns the sum of referral counts in the event.
func (r *GiveawayRepository) SumReferralCounts(ctx context.Context, eventID giveaway.EventID) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx,
		`SELECT COALESCE(SUM(referral_count), 0) FROM entries WHERE event_id = $1`,
		int64(eventID),
	).Scan(&n)
	if err != nil {
		return 0, classify("SumReferralCounts", err)
	}
	return n, nil
}

// GetUserHistory returns one item per entry the user holds.
// An entry whose event row is missing is a data integrity error.
func (r *GiveawayRepository) GetUserHistory(ctx context.Context, userID giveaway.UserID) ([]giveaway.HistoryItem, error) {
	query := `
		SELECT e.event_id, g.name, g.is_active, e.referral_count
		FROM entries e
		LEFT JOIN giveaways g ON g.id = e.event_id
		WHERE e.user_id = $1
		ORDER BY e.created_at, e.event_id
	`

	rows, err := r.conn.Query(ctx, query, int64(userID))
	if err != nil {
		return nil, classify("GetUserHistory", err)
	}
	defer rows.Close()

	var items []giveaway.HistoryItem
	for rows.Next() {
		var (
			eventID  int64
			name     *string
			isActive *bool
			count    int
		)
		if err := rows.Scan(&eventID, &name, &isActive, &count); err != nil {
			return nil, shared.WrapError("store", "GetUserHistory", shared.ErrDataIntegrity, "unreadable history row", err)
		}
		if name == nil || isActive == nil {
			return nil, shared.WrapError("store", "GetUserHistory", shared.ErrOrphanEntry,
				fmt.Sprintf("entry of user %d references missing event %d", userID, eventID), nil)
		}
		items = append(items, giveaway.HistoryItem{
			EventID:       giveaway.EventID(eventID),
			EventName:     *name,
			IsActive:      *isActive,
			ReferralCount: count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("GetUserHistory", err)
	}
	return items, nil
}

// ListAllParticipantIDs returns the distinct users holding any entry.
func (r *GiveawayRepository) ListAllParticipantIDs(ctx context.Context) ([]giveaway.UserID, error) {
	rows, err := r.conn.Query(ctx, `SELECT DISTINCT user_id FROM entries ORDER BY user_id`)
	if err != nil {
		return nil, classify("ListAllParticipantIDs", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (giveaway.UserID, error) {
		var id int64
		err := row.Scan(&id)
		return giveaway.UserID(id), err
	})
	if err != nil {
		return nil, classify("ListAllParticipantIDs", err)
	}
	return ids, nil
}

// DrawWinners calls the pick_winners_by_event procedure provisioned in Supabase.
// The procedure owns the weighting; rows are read by column name so extra
// columns it may return are ignored.
func (r *GiveawayRepository) DrawWinners(ctx context.Context, eventID giveaway.EventID) ([]giveaway.Winner, error) {
	rows, err := r.conn.Query(ctx, `SELECT * FROM pick_winners_by_event(target_event_id => $1)`, int64(eventID))
	if err != nil {
		return nil, classify("DrawWinners", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify("DrawWinners", err)
	}

	winners := make([]giveaway.Winner, 0, len(records))
	for _, rec := range records {
		winners = append(winners, giveaway.Winner{
			Username:      stringColumn(rec, "username"),
			WalletAddress: stringColumn(rec, "wallet_address"),
		})
	}
	return winners, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func nullableUserID(id *giveaway.UserID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func stringColumn(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
