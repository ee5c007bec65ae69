package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/kindred/internal/types"
)

// TurnStore is a JSONL-backed append-only conversation log. Turns are stored
// per user in day buckets at users/<id>/conversations/<YYYYMMDD>.jsonl, so a
// calendar day maps directly onto one file.
type TurnStore struct {
	root  string
	loc   *time.Location
	mu    sync.Mutex
	locks map[types.UserID]*sync.Mutex
}

// NewTurnStore creates a file-backed TurnStore rooted at the given directory.
// Day-bucket boundaries are computed in loc, the processing timezone.
func NewTurnStore(root string, loc *time.Location) *TurnStore {
	return &TurnStore{
		root:  root,
		loc:   loc,
		locks: make(map[types.UserID]*sync.Mutex),
	}
}

// getLock returns the per-user mutex, creating one if it doesn't exist.
func (s *TurnStore) getLock(userID types.UserID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[userID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[userID] = lock
	return lock
}

func (s *TurnStore) bucketDir(userID types.UserID) string {
	return filepath.Join(userDir(s.root, string(userID)), "conversations")
}

func (s *TurnStore) bucketPath(userID types.UserID, day types.DayKey) string {
	return filepath.Join(s.bucketDir(userID), string(day)+".jsonl")
}

// Append writes the turn into the day bucket of its timestamp.
func (s *TurnStore) Append(_ context.Context, userID types.UserID, turn *types.Turn) error {
	if err := types.ValidateUserID(userID); err != nil {
		return err
	}
	lock := s.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	day := types.DayKeyFor(turn.Timestamp.In(s.loc))
	path := s.bucketPath(userID, day)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create conversations dir: %w", err)
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open day bucket: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write turn: %w", err)
	}
	return nil
}

// readBucket reads one day bucket. Caller must hold the user lock.
func (s *TurnStore) readBucket(userID types.UserID, day types.DayKey) ([]*types.Turn, error) {
	f, err := os.Open(s.bucketPath(userID, day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open day bucket: %w", err)
	}
	defer f.Close()

	var turns []*types.Turn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var turn types.Turn
		if err := json.Unmarshal(scanner.Bytes(), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, &turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan day bucket: %w", err)
	}
	return turns, nil
}

// ListDay returns all turns in the given day bucket, oldest first.
func (s *TurnStore) ListDay(_ context.Context, userID types.UserID, day types.DayKey) ([]*types.Turn, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	lock := s.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return s.readBucket(userID, day)
}

// Days returns every day bucket with at least one turn, ascending.
func (s *TurnStore) Days(_ context.Context, userID types.UserID) ([]types.DayKey, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	lock := s.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return s.days(userID)
}

func (s *TurnStore) days(userID types.UserID) ([]types.DayKey, error) {
	entries, err := os.ReadDir(s.bucketDir(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read conversations dir: %w", err)
	}

	var days []types.DayKey
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		days = append(days, types.DayKey(strings.TrimSuffix(name, ".jsonl")))
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

// Tail returns the last limit turns across day buckets, oldest first.
func (s *TurnStore) Tail(_ context.Context, userID types.UserID, limit int) ([]*types.Turn, error) {
	if err := types.ValidateUserID(userID); err != nil {
		return nil, err
	}
	lock := s.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	days, err := s.days(userID)
	if err != nil {
		return nil, err
	}

	// Walk buckets newest first until the limit is covered.
	var collected []*types.Turn
	for i := len(days) - 1; i >= 0 && len(collected) < limit; i-- {
		turns, err := s.readBucket(userID, days[i])
		if err != nil {
			return nil, err
		}
		collected = append(turns, collected...)
	}

	if len(collected) > limit {
		collected = collected[len(collected)-limit:]
	}
	return collected, nil
}
