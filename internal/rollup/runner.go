package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/kindred/internal/types"
)

// Runner fans the rollup job out across every known user with bounded
// parallelism. One user's failure is logged and isolated; there is no
// shared mutable state across users.
type Runner struct {
	job       *Job
	users     types.UserDirectory
	semaphore *semaphore.Weighted
	log       *slog.Logger
	deliver   Deliver
}

// Deliver receives each user's rollup result, e.g. to push the check-in
// over a notification channel.
type Deliver func(ctx context.Context, userID types.UserID, result *Result)

// NewRunner creates a Runner allowing up to maxConcurrent users in flight.
func NewRunner(job *Job, users types.UserDirectory, maxConcurrent int64, log *slog.Logger) *Runner {
	return &Runner{
		job:       job,
		users:     users,
		semaphore: semaphore.NewWeighted(maxConcurrent),
		log:       log,
	}
}

// OnResult registers a callback invoked for each user whose rollup
// succeeded. Must be set before Run.
func (r *Runner) OnResult(fn Deliver) {
	r.deliver = fn
}

// Run executes the rollup for all users and returns once every user has
// been processed or skipped.
func (r *Runner) Run(ctx context.Context) error {
	users, err := r.users.Users(ctx)
	if err != nil {
		return fmt.Errorf("enumerate users: %w", err)
	}

	var wg sync.WaitGroup
	for _, userID := range users {
		if err := r.semaphore.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return fmt.Errorf("acquire worker slot: %w", err)
		}

		wg.Add(1)
		go func(userID types.UserID) {
			defer wg.Done()
			defer r.semaphore.Release(1)
			r.runOne(ctx, userID)
		}(userID)
	}
	wg.Wait()
	return nil
}

func (r *Runner) runOne(ctx context.Context, userID types.UserID) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("rollup panicked for user", "user", userID, "panic", p)
		}
	}()

	result, err := r.job.RunForUser(ctx, userID)
	if err != nil {
		r.log.Error("rollup failed for user", "user", userID, "error", err)
		return
	}
	if r.deliver != nil {
		r.deliver(ctx, userID, result)
	}
	r.log.Info("rollup complete", "user", userID)
}
