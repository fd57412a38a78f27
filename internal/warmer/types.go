package warmer

import "time"

// Status represents the lifecycle state of the warming run.
type Status string

// Run status values persisted in the run store.
const (
	StatusNotOperating Status = "not_operating"
	StatusInProgress   Status = "in_progress"
	StatusFinished     Status = "finished"
)

// Default run parameters applied when a start command omits them.
const (
	DefaultMaxItems  = 0
	DefaultDelayMs   = 0
	DefaultBatchSize = 100
)

// RunConfig captures the parameters requested when a run is started.
type RunConfig struct {
	// MaxItems caps the number of items fetched; 0 means every published item.
	MaxItems int `json:"max_items"`
	// DelayMs is the pause after each item fetch.
	DelayMs int `json:"delay_ms"`
	// BatchSize is the page size of each tick's content query.
	BatchSize int `json:"batch_size"`
}

// Delay converts DelayMs into a duration.
func (c RunConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// RunState is the mutable progress of the current run.
type RunState struct {
	RunID     string    `json:"run_id,omitempty"`
	Scheduled bool      `json:"scheduled"`
	Cancelled bool      `json:"cancelled"`
	Status    Status    `json:"status"`
	Cursor    int64     `json:"cursor"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Run is the singleton record kept by a RunStore.
type Run struct {
	Config RunConfig `json:"config"`
	State  RunState  `json:"state"`
}

// NewRun returns the record used when nothing has been persisted yet.
func NewRun() Run {
	return Run{
		Config: RunConfig{
			MaxItems:  DefaultMaxItems,
			DelayMs:   DefaultDelayMs,
			BatchSize: DefaultBatchSize,
		},
		State: RunState{Status: StatusNotOperating},
	}
}

// Active reports whether the run still expects ticks.
func (r Run) Active() bool {
	return r.State.Scheduled && r.State.Status == StatusInProgress
}

// Item is a published content entity eligible for warming.
type Item struct {
	ID   int64  `json:"id"`
	Kind string `json:"kind"`
	// URL is either absolute or a path resolved against the site base URL.
	URL string `json:"url"`
}

// FetchResult describes a completed warm request.
type FetchResult struct {
	URL        string
	StatusCode int
	Bytes      int
	Duration   time.Duration
}

// Report is returned by status queries.
type Report struct {
	Status             Status `json:"status"`
	ProcessedCount     int    `json:"processed_count"`
	MaxItems           int    `json:"max_items"`
	ProgressPercentage int    `json:"progress_percentage"`
	FailedCount        int    `json:"failed_count"`
	RunID              string `json:"run_id,omitempty"`
}

// CompletionReason explains why a run finalized.
type CompletionReason string

// Completion reasons carried by Completion events.
const (
	ReasonExhausted    CompletionReason = "exhausted"
	ReasonLimitReached CompletionReason = "limit_reached"
)

// Completion is emitted once per naturally finished run.
type Completion struct {
	RunID      string           `json:"run_id"`
	Reason     CompletionReason `json:"reason"`
	Processed  int              `json:"processed"`
	Failed     int              `json:"failed"`
	Config     RunConfig        `json:"config"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}
