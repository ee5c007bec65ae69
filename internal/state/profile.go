package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/kindred/internal/types"
)

// allowedProfileFields is the closed set of keys Update will accept.
var allowedProfileFields = map[string]bool{
	"display_name":   true,
	"notify_address": true,
}

// ProfileStore persists one profile document per user at
// users/<id>/profile.json.
type ProfileStore struct {
	root string
	mu   sync.Mutex
}

// NewProfileStore creates a file-backed ProfileStore rooted at the given directory.
func NewProfileStore(root string) *ProfileStore {
	return &ProfileStore{root: root}
}

func (s *ProfileStore) path(userID types.UserID) string {
	return filepath.Join(userDir(s.root, string(userID)), "profile.json")
}

// Get returns the stored profile, or a default profile when none exists yet.
func (s *ProfileStore) Get(_ context.Context, userID types.UserID) (*types.Profile, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(userID)
}

func (s *ProfileStore) load(userID types.UserID) (*types.Profile, error) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return &types.Profile{ID: userID}, nil
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var profile types.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	profile.ID = userID
	return &profile, nil
}

// Update applies the given fields to the profile. Only keys in the allow
// list are accepted; any unknown key rejects the whole update.
func (s *ProfileStore) Update(_ context.Context, userID types.UserID, fields map[string]string) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	for key := range fields {
		if !allowedProfileFields[key] {
			return fmt.Errorf("unknown profile field: %s", key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.load(userID)
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
	return writeJSONAtomic(s.path(userID), profile)
}
