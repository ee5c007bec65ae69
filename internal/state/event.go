package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/user/kindred/internal/types"
)

// EventStore keeps each user's detected life events in a single JSON file at
// users/<id>/events.json, rewritten atomically on every mutation.
type EventStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.UserID]*sync.Mutex
}

// NewEventStore creates a file-backed EventStore rooted at the given directory.
func NewEventStore(root string) *EventStore {
	return &EventStore{
		root:  root,
		locks: make(map[types.UserID]*sync.Mutex),
	}
}

func (s *EventStore) getLock(userID types.UserID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[userID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[userID] = lock
	return lock
}

func (s *EventStore) path(userID types.UserID) string {
	return filepath.Join(userDir(s.root, string(userID)), "events.json")
}

// load reads the event list. Caller must hold the user lock.
func (s *EventStore) load(userID types.UserID) ([]*types.Event, error) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read events file: %w", err)
	}

	var events []*types.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return events, nil
}

func (s *EventStore) save(userID types.UserID, events []*types.Event) error {
	return writeJSONAtomic(s.path(userID), events)
}

// Upsert stores the event unless its deterministic id already exists.
// Returns true when a new event was created.
func (s *EventStore) Upsert(_ context.Context, userID types.UserID, event *types.Event) (bool, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return false, err
	}
	lock := s.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	events, err := s.load(userID)
	if err != nil {
		return false, err
	}

	for _, existing := range events {
		if existing.ID == event.ID {
			return false, nil
		}
	}

	events = append(events, event)
	if err := s.save(userID, events); err != nil {
		return false, err
	}
	return true, nil
}

// sortEvents orders by event date ascending, undated last, id as tiebreak,
// so greeting selection is reproducible.
func sortEvents(events []*types.Event) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		switch {
		case a.EventDate == "" && b.EventDate != "":
			return false
		case a.EventDate != "" && b.EventDate == "":
			return true
		case a.EventDate != b.EventDate:
			return a.EventDate < b.EventDate
		}
		return a.ID < b.ID
	})
}

// Pending returns non-completed events sorted by event date, then id.
func (s *EventStore) Pending(_ context.Context, userID types.UserID) ([]*types.Event, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	lock := s.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	events, err := s.load(userID)
	if err != nil {
		return nil, err
	}

	var pending []*types.Event
	for _, event := range events {
		if !event.Completed {
			pending = append(pending, event)
		}
	}
	sortEvents(pending)
	return pending, nil
}

// List returns all stored events for the user.
func (s *EventStore) List(_ context.Context, userID types.UserID) ([]*types.Event, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	lock := s.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	events, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	sortEvents(events)
	return events, nil
}

// Complete flips the event's completed flag to true. The transition is
// one-way: completing an already-completed event changes nothing.
func (s *EventStore) Complete(_ context.Context, userID types.UserID, id types.EventID) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	lock := s.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	events, err := s.load(userID)
	if err != nil {
		return err
	}

	for _, event := range events {
		if event.ID != id {
			continue
		}
		if event.Completed {
			return nil
		}
		event.Completed = true
		return s.save(userID, events)
	}
	return fmt.Errorf("event not found: %s", id)
}

// Delete removes the event. Deleting a missing event is a no-op.
func (s *EventStore) Delete(_ context.Context, userID types.UserID, id types.EventID) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	lock := s.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	events, err := s.load(userID)
	if err != nil {
		return err
	}

	kept := events[:0]
	for _, event := range events {
		if event.ID != id {
			kept = append(kept, event)
		}
	}
	if len(kept) == len(events) {
		return nil
	}
	return s.save(userID, kept)
}
