package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/kindred/internal/types"
)

// SummaryStore persists one daily summary per user per day at
// users/<id>/summaries/<YYYYMMDD>.json. Summaries are write-once: a second
// Put for the same day fails so rollups stay idempotent at the caller.
type SummaryStore struct {
	root string
}

// NewSummaryStore creates a file-backed SummaryStore rooted at the given directory.
func NewSummaryStore(root string) *SummaryStore {
	return &SummaryStore{root: root}
}

func (s *SummaryStore) path(userID types.UserID, day types.DayKey) string {
	return filepath.Join(userDir(s.root, string(userID)), "summaries", string(day)+".json")
}

// Put writes the summary for its day. Returns an error if one already exists.
func (s *SummaryStore) Put(_ context.Context, userID types.UserID, summary *types.DailySummary) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	path := s.path(userID, summary.Date)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("summary already exists for %s", summary.Date)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat summary: %w", err)
	}
	return writeJSONAtomic(path, summary)
}

// Get returns the summary for the day, or nil when none has been written.
func (s *SummaryStore) Get(_ context.Context, userID types.UserID, day types.DayKey) (*types.DailySummary, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(userID, day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read summary: %w", err)
	}

	var summary types.DailySummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &summary, nil
}
