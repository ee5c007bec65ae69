package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type UserID string
type TurnID string
type EventID string

// ValidateUserID rejects ids that cannot serve as a store key. User ids come
// from external input and are used as path components by the file backend, so
// separators and parent references are never acceptable.
func ValidateUserID(id UserID) error {
	s := string(id)
	if s == "" || strings.ContainsAny(s, "/\\") || strings.Contains(s, "..") {
		return fmt.Errorf("invalid user id: %q", s)
	}
	return nil
}

// DayKey identifies one calendar day of conversation for a user,
// formatted YYYYMMDD in the processing timezone.
type DayKey string

const dayKeyLayout = "20060102"

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

// NewEventID derives a deterministic id from the event's identity fields so
// that re-detecting the same event from re-processed input upserts instead of
// duplicating. The description is hashed first so arbitrarily long text never
// leaks into the id input.
func NewEventID(eventType string, userID UserID, eventDate string, description string) EventID {
	content := sha256.Sum256([]byte(description))
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{
		eventType,
		string(userID),
		eventDate,
		hex.EncodeToString(content[:]),
	}, "|")))
	return EventID(hex.EncodeToString(h.Sum(nil))[:16])
}

// DayKeyFor returns the day bucket key for the given instant.
func DayKeyFor(t time.Time) DayKey {
	return DayKey(t.Format(dayKeyLayout))
}

// Time parses the day key back into a midnight timestamp in loc.
func (d DayKey) Time(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dayKeyLayout, string(d), loc)
}
