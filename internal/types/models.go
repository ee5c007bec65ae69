package types

import "time"

// EventDateLayout is the wire format for Event.EventDate.
const EventDateLayout = "2006-01-02"

// Turn is one user/model exchange. Turns are immutable once written and
// belong to the day bucket of their timestamp.
type Turn struct {
	ID          TurnID    `json:"id"`
	UserText    string    `json:"user_text"`
	ModelText   string    `json:"model_text"`
	Timestamp   time.Time `json:"timestamp"`
	Emotion     string    `json:"emotion,omitempty"`
	Urgency     int       `json:"urgency"`
	Suggestions []string  `json:"suggestions,omitempty"`
	FollowUps   []string  `json:"follow_ups,omitempty"`
}

// Event is a dated life event mentioned in conversation, tracked so the
// companion can follow up on it. Completed flips false->true exactly once.
type Event struct {
	ID          EventID   `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	EventDate   string    `json:"event_date,omitempty"`
	MentionedAt time.Time `json:"mentioned_at"`
	Completed   bool      `json:"completed"`
}

// Date parses EventDate in loc. ok is false when the event has no date.
func (e *Event) Date(loc *time.Location) (time.Time, bool) {
	if e.EventDate == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(EventDateLayout, e.EventDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DailySummary is the day-level rollup of one user's conversation.
// Exactly one may exist per (user, day), and only for past days.
type DailySummary struct {
	Date         DayKey   `json:"date"`
	SummaryText  string   `json:"summary_text"`
	EmotionTrend []string `json:"emotion_trend,omitempty"`
	AvgUrgency   float64  `json:"avg_urgency"`
	MessageCount int      `json:"message_count"`
}

// Profile holds the long-lived per-user record. The id is the user's email.
type Profile struct {
	ID            UserID `json:"id"`
	DisplayName   string `json:"display_name,omitempty"`
	NotifyAddress string `json:"notify_address,omitempty"`
}

// Name returns the display name or a friendly default.
func (p *Profile) Name() string {
	if p == nil || p.DisplayName == "" {
		return "friend"
	}
	return p.DisplayName
}
