package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/kindred/internal/types"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS turns (
	user_id    TEXT NOT NULL,
	day        TEXT NOT NULL,
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_user_day ON turns (user_id, day);

CREATE TABLE IF NOT EXISTS events (
	user_id     TEXT NOT NULL,
	event_id    TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	description TEXT NOT NULL,
	event_date  TEXT NOT NULL,
	mentioned_at TEXT NOT NULL,
	completed   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, event_id)
);

CREATE TABLE IF NOT EXISTS summaries (
	user_id TEXT NOT NULL,
	day     TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (user_id, day)
);

CREATE TABLE IF NOT EXISTS profiles (
	user_id        TEXT PRIMARY KEY,
	display_name   TEXT NOT NULL DEFAULT '',
	notify_address TEXT NOT NULL DEFAULT ''
);
`

// SQLStore implements every store interface on a single sqlite database.
// It is a drop-in alternative to the filesystem backend for deployments
// that prefer one file over a directory tree.
type SQLStore struct {
	db  *sql.DB
	loc *time.Location
}

// OpenSQLStore opens (or creates) the sqlite database at path and applies
// the schema. Day-bucket boundaries are computed in loc.
func OpenSQLStore(path string, loc *time.Location) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// sqlite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLStore{db: db, loc: loc}, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Append writes a turn into the day bucket of its timestamp.
func (s *SQLStore) Append(ctx context.Context, userID types.UserID, turn *types.Turn) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	day := types.DayKeyFor(turn.Timestamp.In(s.loc))
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (user_id, day, payload) VALUES (?, ?, ?)`,
		string(userID), string(day), string(payload))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func scanTurns(rows *sql.Rows) ([]*types.Turn, error) {
	defer rows.Close()

	var turns []*types.Turn
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		var turn types.Turn
		if err := json.Unmarshal([]byte(payload), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}

// Tail returns the last limit turns, oldest first.
func (s *SQLStore) Tail(ctx context.Context, userID types.UserID, limit int) ([]*types.Turn, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM (
			SELECT seq, payload FROM turns WHERE user_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`,
		string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("query tail: %w", err)
	}
	return scanTurns(rows)
}

// ListDay returns all turns in the given day bucket, oldest first.
func (s *SQLStore) ListDay(ctx context.Context, userID types.UserID, day types.DayKey) ([]*types.Turn, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM turns WHERE user_id = ? AND day = ? ORDER BY seq ASC`,
		string(userID), string(day))
	if err != nil {
		return nil, fmt.Errorf("query day: %w", err)
	}
	return scanTurns(rows)
}

// Days returns every day bucket with at least one turn, ascending.
func (s *SQLStore) Days(ctx context.Context, userID types.UserID) ([]types.DayKey, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT day FROM turns WHERE user_id = ? ORDER BY day ASC`,
		string(userID))
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer rows.Close()

	var days []types.DayKey
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, types.DayKey(day))
	}
	return days, rows.Err()
}

// Upsert stores the event unless its id already exists.
func (s *SQLStore) Upsert(ctx context.Context, userID types.UserID, event *types.Event) (bool, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events
			(user_id, event_id, event_type, description, event_date, mentioned_at, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(userID), string(event.ID), event.Type, event.Description,
		event.EventDate, event.MentionedAt.Format(time.RFC3339), boolInt(event.Completed))
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLStore) queryEvents(ctx context.Context, query string, args ...any) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var (
			event     types.Event
			id        string
			mentioned string
			completed int
		)
		if err := rows.Scan(&id, &event.Type, &event.Description, &event.EventDate, &mentioned, &completed); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.ID = types.EventID(id)
		event.Completed = completed != 0
		if t, err := time.Parse(time.RFC3339, mentioned); err == nil {
			event.MentionedAt = t
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

const eventColumns = `event_id, event_type, description, event_date, mentioned_at, completed`

// Pending returns non-completed events sorted by event date, then id,
// with undated events last.
func (s *SQLStore) Pending(ctx context.Context, userID types.UserID) ([]*types.Event, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE user_id = ? AND completed = 0
		ORDER BY event_date = '', event_date ASC, event_id ASC`,
		string(userID))
}

// List returns all stored events for the user.
func (s *SQLStore) List(ctx context.Context, userID types.UserID) ([]*types.Event, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE user_id = ?
		ORDER BY event_date = '', event_date ASC, event_id ASC`,
		string(userID))
}

// Complete flips the event's completed flag to true.
func (s *SQLStore) Complete(ctx context.Context, userID types.UserID, id types.EventID) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET completed = 1 WHERE user_id = ? AND event_id = ?`,
		string(userID), string(id))
	if err != nil {
		return fmt.Errorf("complete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM events WHERE user_id = ? AND event_id = ?`,
			string(userID), string(id)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check event: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("event not found: %s", id)
		}
	}
	return nil
}

// Delete removes the event. Deleting a missing event is a no-op.
func (s *SQLStore) Delete(ctx context.Context, userID types.UserID, id types.EventID) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE user_id = ? AND event_id = ?`,
		string(userID), string(id))
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// SQLSummaries is the SummaryStore view of a SQLStore. It exists because
// summaries and profiles both want a Get method.
type SQLSummaries struct {
	s *SQLStore
}

// Summaries returns the SummaryStore view.
func (s *SQLStore) Summaries() *SQLSummaries {
	return &SQLSummaries{s: s}
}

// Put stores the summary. It fails if one already exists for the day.
func (v *SQLSummaries) Put(ctx context.Context, userID types.UserID, summary *types.DailySummary) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	s := v.s
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO summaries (user_id, day, payload) VALUES (?, ?, ?)`,
		string(userID), string(summary.Date), string(payload))
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("summary already exists for %s", summary.Date)
	}
	return nil
}

// Get returns the summary for the day, or nil when none exists.
func (v *SQLSummaries) Get(ctx context.Context, userID types.UserID, day types.DayKey) (*types.DailySummary, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	s := v.s
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM summaries WHERE user_id = ? AND day = ?`,
		string(userID), string(day)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}

	var summary types.DailySummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &summary, nil
}

// SQLProfiles is the ProfileStore view of a SQLStore.
type SQLProfiles struct {
	s *SQLStore
}

// Profiles returns the ProfileStore view.
func (s *SQLStore) Profiles() *SQLProfiles {
	return &SQLProfiles{s: s}
}

// Get returns the stored profile, or a default when none exists.
func (v *SQLProfiles) Get(ctx context.Context, userID types.UserID) (*types.Profile, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	s := v.s
	profile := &types.Profile{ID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT display_name, notify_address FROM profiles WHERE user_id = ?`,
		string(userID)).Scan(&profile.DisplayName, &profile.NotifyAddress)
	if err == sql.ErrNoRows {
		return profile, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return profile, nil
}

// Update applies the given fields to the profile, rejecting unknown keys.
func (v *SQLProfiles) Update(ctx context.Context, userID types.UserID, fields map[string]string) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	for key := range fields {
		if !allowedProfileFields[key] {
			return fmt.Errorf("unknown profile field: %s", key)
		}
	}
	s := v.s

	profile, err := v.Get(ctx, userID)
	if err != nil {
		return err
	}
	for key, value := range fields {
		switch key {
		case "display_name":
			profile.DisplayName = value
		case "notify_address":
			profile.NotifyAddress = value
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, notify_address)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = excluded.display_name,
			notify_address = excluded.notify_address`,
		string(userID), profile.DisplayName, profile.NotifyAddress)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Users returns every user id present in any table, sorted ascending.
func (s *SQLStore) Users(ctx context.Context) ([]types.UserID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM profiles
		UNION SELECT user_id FROM turns
		UNION SELECT user_id FROM events
		ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []types.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, types.UserID(id))
	}
	return users, rows.Err()
}
