package warmer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

type fakeStore struct {
	mu        sync.Mutex
	run       Run
	updates   int
	failAfter int
	onUpdate  func(updates int, r *Run)
	// afterUpdate runs outside the lock once a write is stored.
	afterUpdate func(updates int)
}

func newFakeStore() *fakeStore {
	return &fakeStore{run: NewRun(), failAfter: -1}
}

func (s *fakeStore) Load(_ context.Context) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run, nil
}

func (s *fakeStore) Update(_ context.Context, fn func(*Run) error) (Run, error) {
	s.mu.Lock()
	next, n, hook, err := s.updateLocked(fn)
	s.mu.Unlock()
	if err == nil && hook != nil {
		hook(n)
	}
	return next, err
}

func (s *fakeStore) updateLocked(fn func(*Run) error) (Run, int, func(int), error) {
	s.updates++
	if s.failAfter >= 0 && s.updates > s.failAfter {
		return Run{}, s.updates, nil, errors.New("store unavailable")
	}
	if s.onUpdate != nil {
		s.onUpdate(s.updates, &s.run)
	}
	next := s.run
	if err := fn(&next); err != nil {
		return Run{}, s.updates, nil, err
	}
	s.run = next
	return next, s.updates, s.afterUpdate, nil
}

func (s *fakeStore) snapshot() Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

type fakeContent struct {
	mu      sync.Mutex
	items   []Item
	queries []int64
	err     error
}

func newFakeContent(ids ...int64) *fakeContent {
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, Item{ID: id, Kind: "post", URL: fmt.Sprintf("/?p=%d", id)})
	}
	return &fakeContent{items: items}
}

func (c *fakeContent) Next(_ context.Context, kinds []string, fromID int64, limit int) ([]Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, fromID)
	if c.err != nil {
		return nil, c.err
	}
	var out []Item
	for _, item := range c.items {
		if item.ID < fromID || !slices.Contains(kinds, item.Kind) {
			continue
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *fakeContent) Count(_ context.Context, kind string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	n := 0
	for _, item := range c.items {
		if item.Kind == kind {
			n++
		}
	}
	return n, nil
}

type fakeScheduler struct {
	mu       sync.Mutex
	delays   []time.Duration
	cancels  int
	schedErr error
}

func (s *fakeScheduler) ScheduleOnce(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedErr != nil {
		return s.schedErr
	}
	s.delays = append(s.delays, delay)
	return nil
}

func (s *fakeScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeScheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

type fakeFetcher struct {
	mu      sync.Mutex
	urls    []string
	fail    map[string]error
	status  map[string]int
	onFetch func(url string)
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (FetchResult, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	hook := f.onFetch
	err := f.fail[url]
	code, ok := f.status[url]
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	if err != nil {
		return FetchResult{URL: url}, err
	}
	if !ok {
		code = 200
	}
	return FetchResult{URL: url, StatusCode: code, Bytes: 10, Duration: time.Millisecond}, nil
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type recordingListener struct {
	mu          sync.Mutex
	completions []Completion
}

func (l *recordingListener) OnComplete(_ context.Context, c Completion) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completions = append(l.completions, c)
}

func (l *recordingListener) runIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.completions))
	for _, c := range l.completions {
		ids = append(ids, c.RunID)
	}
	return ids
}

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time {
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.sleeps = append(s.sleeps, d)
	}
}

type harness struct {
	store      *fakeStore
	content    *fakeContent
	scheduler  *fakeScheduler
	fetcher    *fakeFetcher
	listener   *recordingListener
	sleeper    *recordingSleeper
	stepper    *Stepper
	controller *Controller
}

func newHarness(content *fakeContent, stepCfg StepperConfig) *harness {
	h := &harness{
		store:     newFakeStore(),
		content:   content,
		scheduler: &fakeScheduler{},
		fetcher:   &fakeFetcher{},
		listener:  &recordingListener{},
		sleeper:   &recordingSleeper{},
	}
	resolver, err := NewBaseURLResolver("https://example.com")
	if err != nil {
		panic(err)
	}
	clock := fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	h.stepper = NewStepper(StepperDeps{
		Store:     h.store,
		Content:   h.content,
		Resolver:  resolver,
		Fetcher:   h.fetcher,
		Scheduler: h.scheduler,
		Listener:  h.listener,
		Clock:     clock,
		Sleeper:   h.sleeper,
	}, stepCfg, nil)
	h.controller = NewController(ControllerDeps{
		Store:     h.store,
		Content:   h.content,
		Scheduler: h.scheduler,
		Clock:     clock,
		IDs:       &seqIDs{},
	}, ControllerConfig{Limits: Limits{MaxBatchSize: 500}}, nil)
	return h
}

// drain ticks until the stepper stops asking for more, bounded by limit.
func (h *harness) drain(ctx context.Context, limit int) []Outcome {
	var outcomes []Outcome
	for range limit {
		outcome, err := h.stepper.Tick(ctx)
		if err != nil {
			panic(err)
		}
		outcomes = append(outcomes, outcome)
		if outcome != OutcomeContinue {
			return outcomes
		}
	}
	return outcomes
}

func intPtr(v int) *int {
	return &v
}

func urlFor(id int64) string {
	return fmt.Sprintf("https://example.com/?p=%d", id)
}
