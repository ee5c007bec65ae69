// Package state provides document-store implementations: a hierarchical
// filesystem backend (one directory per user, JSONL day buckets) and a
// sqlite backend behind the same interfaces.
package state

import "github.com/user/kindred/internal/types"

// Compile-time interface compliance checks.
var _ types.TurnStore = (*TurnStore)(nil)
var _ types.EventStore = (*EventStore)(nil)
var _ types.SummaryStore = (*SummaryStore)(nil)
var _ types.ProfileStore = (*ProfileStore)(nil)
var _ types.UserDirectory = (*Directory)(nil)

var _ types.TurnStore = (*SQLStore)(nil)
var _ types.EventStore = (*SQLStore)(nil)
var _ types.SummaryStore = (*SQLSummaries)(nil)
var _ types.ProfileStore = (*SQLProfiles)(nil)
var _ types.UserDirectory = (*SQLStore)(nil)
