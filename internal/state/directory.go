package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/user/kindred/internal/types"
)

// Directory enumerates known users from the users/ subdirectory layout.
type Directory struct {
	root string
}

// NewDirectory creates a Directory rooted at the given data directory.
func NewDirectory(root string) *Directory {
	return &Directory{root: root}
}

// Users returns all user ids with a data directory, sorted ascending.
func (d *Directory) Users(_ context.Context) ([]types.UserID, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, "users"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read users dir: %w", err)
	}

	var users []types.UserID
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		users = append(users, types.UserID(entry.Name()))
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}
