package warmer

import "time"

// Outcome summarizes what a tick did.
type Outcome string

// Tick outcomes.
const (
	// OutcomeContinue means the batch was processed and another tick was requested.
	OutcomeContinue Outcome = "continue"
	// OutcomeFinished means the run completed and the completion signal fired.
	OutcomeFinished Outcome = "finished"
	// OutcomeStopped means a pending cancellation was consumed.
	OutcomeStopped Outcome = "stopped"
	// OutcomeIdle means no run was active when the tick arrived.
	OutcomeIdle Outcome = "idle"
	// OutcomeSuperseded means a newer Start replaced the run mid-tick.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomeRetry means a store or repository error ended the tick early.
	OutcomeRetry Outcome = "retry"
)

// TickPlan is the pure decision over one fetched batch.
type TickPlan struct {
	// Fetch lists the items to warm, in order.
	Fetch []Item
	// Finish is set when the run completes after Fetch is processed.
	Finish bool
	Reason CompletionReason
}

// Plan decides which items of batch are fetched and whether the run ends.
// A batch with no item past the cursor exhausts the run. With MaxItems > 0
// the items at or beyond the limit are dropped and the run finishes once the
// limit is hit; a batch that lands exactly on the limit is processed whole and
// the following tick observes the limit before its first fetch.
func Plan(cfg RunConfig, state RunState, batch []Item) TickPlan {
	if !advances(batch, state.Cursor) {
		return TickPlan{Finish: true, Reason: ReasonExhausted}
	}
	if cfg.MaxItems > 0 {
		remaining := cfg.MaxItems - state.Processed
		if remaining < len(batch) {
			if remaining < 0 {
				remaining = 0
			}
			return TickPlan{Fetch: batch[:remaining], Finish: true, Reason: ReasonLimitReached}
		}
	}
	return TickPlan{Fetch: batch}
}

// LowerBound returns the smallest item ID the next query may return. Inclusive
// resume re-reads the item at the cursor.
func LowerBound(cursor int64, exclusive bool) int64 {
	if exclusive && cursor > 0 {
		return cursor + 1
	}
	return cursor
}

// PageSize returns the query limit for a tick. Inclusive resume spends one
// slot on the item at the cursor, so the page never shrinks below two there.
func PageSize(batchSize int, cursor int64, exclusive bool) int {
	if !exclusive && cursor > 0 && batchSize < 2 {
		return 2
	}
	return batchSize
}

func advances(batch []Item, cursor int64) bool {
	for _, item := range batch {
		if item.ID > cursor {
			return true
		}
	}
	return false
}

// Percentage returns min(100, round(processed/max*100)), or 0 when max is 0.
func Percentage(processed, maxItems int) int {
	if maxItems <= 0 {
		return 0
	}
	pct := (processed*200 + maxItems) / (2 * maxItems)
	if pct > 100 {
		return 100
	}
	return pct
}

func beginRun(r *Run, cfg RunConfig, runID string, now time.Time) {
	r.Config = cfg
	r.State = RunState{
		RunID:     runID,
		Scheduled: true,
		Cancelled: false,
		Status:    StatusInProgress,
		Cursor:    0,
		Processed: 0,
		StartedAt: now,
		UpdatedAt: now,
	}
}

func stopRun(r *Run, now time.Time) {
	r.State.Status = StatusNotOperating
	r.State.Scheduled = false
	r.State.Cancelled = false
	r.State.UpdatedAt = now
}

func finishRun(r *Run, now time.Time) {
	r.State.Cursor = 0
	r.State.Processed = 0
	r.State.Failed = 0
	r.State.Status = StatusFinished
	r.State.Scheduled = false
	r.State.UpdatedAt = now
}
