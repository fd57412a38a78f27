package warmer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func items(ids ...int64) []Item {
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, Item{ID: id, Kind: "post"})
	}
	return out
}

func TestPlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       RunConfig
		state     RunState
		batch     []Item
		wantFetch int
		wantDone  bool
		reason    CompletionReason
	}{
		{
			name:     "empty batch exhausts",
			cfg:      RunConfig{BatchSize: 2},
			wantDone: true,
			reason:   ReasonExhausted,
		},
		{
			name:      "unlimited fetches whole batch",
			cfg:       RunConfig{BatchSize: 3},
			batch:     items(1, 2, 3),
			wantFetch: 3,
		},
		{
			name:      "limit truncates batch",
			cfg:       RunConfig{MaxItems: 3, BatchSize: 2},
			state:     RunState{Processed: 2, Cursor: 11},
			batch:     items(11, 12),
			wantFetch: 1,
			wantDone:  true,
			reason:    ReasonLimitReached,
		},
		{
			name:      "batch landing on limit defers finish",
			cfg:       RunConfig{MaxItems: 2, BatchSize: 2},
			batch:     items(1, 2),
			wantFetch: 2,
		},
		{
			name:     "limit already reached",
			cfg:      RunConfig{MaxItems: 2, BatchSize: 2},
			state:    RunState{Processed: 2, Cursor: 2},
			batch:    items(2, 3),
			wantDone: true,
			reason:   ReasonLimitReached,
		},
		{
			name:     "only the cursor item left",
			cfg:      RunConfig{BatchSize: 2},
			state:    RunState{Processed: 5, Cursor: 5},
			batch:    items(5),
			wantDone: true,
			reason:   ReasonExhausted,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			plan := Plan(tc.cfg, tc.state, tc.batch)
			require.Len(t, plan.Fetch, tc.wantFetch)
			require.Equal(t, tc.wantDone, plan.Finish)
			require.Equal(t, tc.reason, plan.Reason)
		})
	}
}

func TestLowerBoundAndPageSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(0), LowerBound(0, false))
	require.Equal(t, int64(0), LowerBound(0, true))
	require.Equal(t, int64(11), LowerBound(11, false))
	require.Equal(t, int64(12), LowerBound(11, true))

	require.Equal(t, 1, PageSize(1, 0, false))
	require.Equal(t, 2, PageSize(1, 7, false))
	require.Equal(t, 1, PageSize(1, 7, true))
	require.Equal(t, 100, PageSize(100, 7, false))
}

func TestPercentage(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, Percentage(5, 0))
	require.Equal(t, 0, Percentage(0, 10))
	require.Equal(t, 33, Percentage(1, 3))
	require.Equal(t, 67, Percentage(2, 3))
	require.Equal(t, 50, Percentage(1, 2))
	require.Equal(t, 100, Percentage(3, 3))
	require.Equal(t, 100, Percentage(12, 10))
}
