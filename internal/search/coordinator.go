// Package search coordinates a debounced, cancellable ride search.
//
// All coordinator state lives in a State value advanced by the pure Reduce
// function. The Coordinator serialises events (caller mutations, timer
// fires, request completions) and performs the effects Reduce asks for. A
// request only commits while its generation is still the newest one issued,
// so a slow, superseded response can never overwrite a newer result.
package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/ride-search/internal/models"
	"github.com/example/ride-search/internal/observability"
)

// DefaultDebounce is the quiet period after the last filter change.
const DefaultDebounce = 450 * time.Millisecond

// Searcher runs one search. ridesapi.Client and listing.Service implement it.
type Searcher interface {
	Search(ctx context.Context, f models.SearchFilters) (models.SearchResultPage, error)
}

// Snapshot is the view of the coordinator exposed to the rendering layer.
type Snapshot struct {
	Filters    models.SearchFilters
	Request    RequestState
	TotalPages int
	Generation uint64
	Debouncing bool
	Version    uint64
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithScheduler replaces the wall-clock timer scheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithRequestTimeout bounds every search; zero leaves it to the transport.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithFallback toggles the placeholder page for unreachable or malformed
// backends. It is on by default.
func WithFallback(enabled bool) Option {
	return func(c *Coordinator) { c.fallback = enabled }
}

// WithClock sets the time source used for placeholder departures.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithInitialFilters starts the coordinator from f instead of the defaults.
func WithInitialFilters(f models.SearchFilters) Option {
	return func(c *Coordinator) { c.state = InitialState(f) }
}

type Coordinator struct {
	searcher  Searcher
	scheduler Scheduler
	debounce  time.Duration
	timeout   time.Duration
	fallback  bool
	now       func() time.Time
	logger    *zap.Logger

	mu       sync.Mutex
	state    State
	inflight map[uint64]context.CancelFunc
	subs     map[int]chan Snapshot
	nextSub  int
	closed   bool
	wg       sync.WaitGroup
}

// New returns an idle coordinator that searches through s.
func New(s Searcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		searcher:  s,
		scheduler: NewTimerScheduler(),
		debounce:  DefaultDebounce,
		fallback:  true,
		now:       time.Now,
		logger:    zap.NewNop(),
		state:     InitialState(models.DefaultFilters()),
		inflight:  make(map[uint64]context.CancelFunc),
		subs:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("search_coordinator")
	return c
}

// SetFilter updates one filter and restarts the debounce window. Invalid
// values are rejected and leave the filters untouched.
func (c *Coordinator) SetFilter(field models.Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	f, err := c.state.Filters.With(field, value)
	if err != nil {
		return err
	}
	c.dispatchLocked(FiltersChanged{Filters: f})
	return nil
}

// SetPage moves to page n, clamped to the last known page count, and
// searches immediately.
func (c *Coordinator) SetPage(n int) {
	c.dispatch(PageRequested{Page: n})
}

// TriggerSearchNow searches from the first page without waiting for the
// debounce window.
func (c *Coordinator) TriggerSearchNow() {
	c.dispatch(SearchRequested{})
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshotOf(c.state)
}

// Subscribe returns a channel that always holds the latest snapshot; a slow
// reader skips intermediate ones. The current snapshot is delivered first.
// The returned func unsubscribes and closes the channel.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- snapshotOf(c.state)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Await blocks until no debounce is armed and the latest search settled, then
// returns that snapshot. An idle coordinator returns at once.
func (c *Coordinator) Await(ctx context.Context) (Snapshot, error) {
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return c.Snapshot(), ErrClosed
			}
			if !snap.Debouncing && snap.Request.Status != StatusPending {
				return snap, nil
			}
		}
	}
}

// Close disarms timers, aborts in-flight requests, closes subscriptions and
// waits for request goroutines to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.state.DebounceToken != 0 {
		c.scheduler.Cancel(c.state.DebounceToken)
	}
	for gen, cancel := range c.inflight {
		cancel()
		delete(c.inflight, gen)
	}
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) dispatch(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.dispatchLocked(ev)
}

func (c *Coordinator) dispatchLocked(ev Event) {
	prev := c.state.Version
	next, effects := Reduce(c.state, ev)
	c.state = next
	for _, eff := range effects {
		c.perform(eff)
	}
	if next.Version != prev {
		c.publishLocked()
	}
}

func (c *Coordinator) perform(eff Effect) {
	switch eff := eff.(type) {
	case ScheduleDebounce:
		token := eff.Token
		c.scheduler.Schedule(c.debounce, token, func() {
			c.dispatch(DebounceElapsed{Token: token})
		})
	case CancelDebounce:
		c.scheduler.Cancel(eff.Token)
	case CancelSearch:
		if cancel, ok := c.inflight[eff.Generation]; ok {
			cancel()
			delete(c.inflight, eff.Generation)
			observability.SearchesSuperseded.Inc()
			c.logger.Debug("search superseded", zap.Uint64("generation", eff.Generation))
		}
	case IssueSearch:
		ctx, cancel := context.WithCancel(context.Background())
		if c.timeout > 0 {
			ctx, cancel = withTimeout(ctx, cancel, c.timeout)
		}
		c.inflight[eff.Generation] = cancel
		observability.SearchesIssued.Inc()
		c.logger.Debug("search issued",
			zap.Uint64("generation", eff.Generation),
			zap.String("query", eff.Filters.Values().Encode()))
		c.wg.Add(1)
		go c.run(ctx, eff.Generation, eff.Filters)
	}
}

func withTimeout(parent context.Context, cancelParent context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		cancel()
		cancelParent()
	}
}

func (c *Coordinator) run(ctx context.Context, gen uint64, f models.SearchFilters) {
	defer c.wg.Done()
	start := time.Now()
	page, err := c.searcher.Search(ctx, f)
	observability.SearchLatency.Observe(time.Since(start).Seconds())

	ev := c.settle(ctx, gen, f, page, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.inflight[gen]; ok {
		cancel()
		delete(c.inflight, gen)
	}
	if c.closed {
		return
	}
	c.dispatchLocked(ev)
}

// settle classifies a finished request into a SearchSettled event.
func (c *Coordinator) settle(ctx context.Context, gen uint64, f models.SearchFilters, page models.SearchResultPage, err error) SearchSettled {
	ev := SearchSettled{Generation: gen}
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		ev.Cancelled = true
		observability.SearchResults.WithLabelValues(observability.OutcomeCancelled).Inc()

	case err == nil:
		if page.CurrentPage < 1 {
			page.CurrentPage = f.Page
		}
		if page.Listings == nil {
			page.Listings = []models.RideListing{}
		}
		ev.Result = &page
		observability.SearchResults.WithLabelValues(observability.OutcomeSucceeded).Inc()

	case c.fallback && fallbackEligible(err):
		p := Placeholder(f, c.now())
		ev.Result = &p
		observability.SearchResults.WithLabelValues(observability.OutcomePlaceholder).Inc()
		c.logger.Info("serving placeholder results", zap.Uint64("generation", gen), zap.Error(err))

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		ev.Message = timeoutFailure
		observability.SearchResults.WithLabelValues(observability.OutcomeFailed).Inc()
		c.logger.Warn("search timed out", zap.Uint64("generation", gen), zap.Duration("timeout", c.timeout))

	default:
		ev.Message = failureMessage(err)
		observability.SearchResults.WithLabelValues(observability.OutcomeFailed).Inc()
		c.logger.Warn("search failed", zap.Uint64("generation", gen), zap.Error(err))
	}
	return ev
}

func (c *Coordinator) publishLocked() {
	snap := snapshotOf(c.state)
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func snapshotOf(s State) Snapshot {
	return Snapshot{
		Filters:    s.Filters,
		Request:    s.Request,
		TotalPages: s.TotalPages,
		Generation: s.Generation,
		Debouncing: s.DebounceToken != 0,
		Version:    s.Version,
	}
}
