package types

import "context"

// TurnStore is the append-only conversation log, partitioned into day buckets.
type TurnStore interface {
	// Append writes a turn into the day bucket of its timestamp.
	Append(ctx context.Context, userID UserID, turn *Turn) error

	// Tail returns the last limit turns across buckets, oldest first.
	Tail(ctx context.Context, userID UserID, limit int) ([]*Turn, error)

	// ListDay returns all turns in the given day bucket, oldest first.
	ListDay(ctx context.Context, userID UserID, day DayKey) ([]*Turn, error)

	// Days returns every day bucket with at least one turn, ascending.
	Days(ctx context.Context, userID UserID) ([]DayKey, error)
}

// EventStore holds detected life events per user.
type EventStore interface {
	// Upsert stores the event unless its id already exists.
	// Returns true when a new event was created.
	Upsert(ctx context.Context, userID UserID, event *Event) (bool, error)

	// Pending returns non-completed events sorted by event date, then id.
	// Undated events sort last.
	Pending(ctx context.Context, userID UserID) ([]*Event, error)

	// List returns all stored events for the user.
	List(ctx context.Context, userID UserID) ([]*Event, error)

	// Complete flips the event's completed flag to true. Completing an
	// already-completed event is a no-op.
	Complete(ctx context.Context, userID UserID, id EventID) error

	// Delete removes the event. Deleting a missing event is a no-op.
	Delete(ctx context.Context, userID UserID, id EventID) error
}

// SummaryStore holds write-once daily summaries.
type SummaryStore interface {
	// Put stores the summary. It fails if one already exists for the day.
	Put(ctx context.Context, userID UserID, summary *DailySummary) error

	// Get returns the summary for the day, or nil when none exists.
	Get(ctx context.Context, userID UserID, day DayKey) (*DailySummary, error)
}

// ProfileStore holds user profiles.
type ProfileStore interface {
	// Get returns the profile, or a default profile when none is stored.
	Get(ctx context.Context, userID UserID) (*Profile, error)

	// Update applies the given field updates. Only allow-listed fields may
	// change; any other key is rejected with an error.
	Update(ctx context.Context, userID UserID, updates map[string]string) error
}

// UserDirectory enumerates every user known to the store, for batch jobs.
type UserDirectory interface {
	Users(ctx context.Context) ([]UserID, error)
}
