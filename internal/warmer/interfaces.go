package warmer

import (
	"context"
	"time"
)

// RunStore persists the singleton Run record.
type RunStore interface {
	// Load returns the stored run, or NewRun() when nothing is stored.
	Load(ctx context.Context) (Run, error)
	// Update applies fn to the current record and persists the result
	// atomically. fn may be invoked more than once when the store retries an
	// optimistic transaction, so it must assign rather than accumulate any
	// captured values. A non-nil error from fn aborts the write.
	Update(ctx context.Context, fn func(*Run) error) (Run, error)
}

// ContentRepository supplies ordered pages of published items.
type ContentRepository interface {
	// Next returns up to limit published items of the given kinds with
	// ID >= fromID, ordered by ascending ID.
	Next(ctx context.Context, kinds []string, fromID int64, limit int) ([]Item, error)
	// Count returns the number of published items of one kind.
	Count(ctx context.Context, kind string) (int, error)
}

// Scheduler re-invokes the stepper.
type Scheduler interface {
	ScheduleOnce(ctx context.Context, delay time.Duration) error
	Cancel()
}

// Fetcher issues the warm request for one URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// URLResolver turns an item into the canonical URL to request.
type URLResolver interface {
	Resolve(item Item) (string, error)
}

// CompletionListener receives the completion signal. Implementations must not
// block for long; the stepper calls them inline at the end of a tick.
type CompletionListener interface {
	OnComplete(ctx context.Context, completion Completion)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Sleeper blocks for the inter-item delay.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}
