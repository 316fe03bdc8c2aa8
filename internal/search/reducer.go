package search

import "github.com/example/ride-search/internal/models"

// Status is the lifecycle position of the search request.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Settled reports whether s is a terminal outcome of a fired search.
func (s Status) Settled() bool { return s == StatusSucceeded || s == StatusFailed }

// RequestState is Idle, Pending, Succeeded(Result) or Failed(Message).
type RequestState struct {
	Status  Status
	Result  *models.SearchResultPage
	Message string
}

// State is everything the coordinator knows. It is a plain value: Reduce
// never mutates its input.
type State struct {
	Filters models.SearchFilters
	Request RequestState

	// TotalPages of the last successful result, used to clamp page moves.
	TotalPages int

	// Generation of the most recently issued search.
	Generation uint64

	// DebounceToken is the armed debounce timer, zero when none.
	DebounceToken uint64
	lastToken     uint64

	// Version increases on every observable change.
	Version uint64
}

// InitialState is an idle coordinator with default filters.
func InitialState(f models.SearchFilters) State {
	return State{Filters: f.Normalize(), TotalPages: 1}
}

// Event is an input to Reduce.
type Event interface{ event() }

// FiltersChanged replaces the filters and restarts the debounce window.
type FiltersChanged struct{ Filters models.SearchFilters }

// PageRequested moves to a page and searches immediately.
type PageRequested struct{ Page int }

// SearchRequested searches from the first page immediately.
type SearchRequested struct{}

// DebounceElapsed reports that the timer armed with Token fired.
type DebounceElapsed struct{ Token uint64 }

// SearchSettled reports the outcome of the search issued as Generation.
// Exactly one of Result and Message is meaningful unless Cancelled is set.
type SearchSettled struct {
	Generation uint64
	Result     *models.SearchResultPage
	Message    string
	Cancelled  bool
}

func (FiltersChanged) event()  {}
func (PageRequested) event()   {}
func (SearchRequested) event() {}
func (DebounceElapsed) event() {}
func (SearchSettled) event()   {}

// Effect is work Reduce asks the caller to perform.
type Effect interface{ effect() }

// ScheduleDebounce arms the debounce timer under Token.
type ScheduleDebounce struct{ Token uint64 }

// CancelDebounce disarms the timer armed under Token.
type CancelDebounce struct{ Token uint64 }

// IssueSearch starts a request for Filters tagged with Generation.
type IssueSearch struct {
	Generation uint64
	Filters    models.SearchFilters
}

// CancelSearch aborts the in-flight request of Generation.
type CancelSearch struct{ Generation uint64 }

func (ScheduleDebounce) effect() {}
func (CancelDebounce) effect()   {}
func (IssueSearch) effect()      {}
func (CancelSearch) effect()     {}

// Reduce applies ev to s. Stale timer fires and stale settles return s
// unchanged with no effects.
func Reduce(s State, ev Event) (State, []Effect) {
	var effects []Effect
	switch ev := ev.(type) {
	case FiltersChanged:
		s.Filters = ev.Filters.Normalize()
		effects = disarm(&s, effects)
		s.lastToken++
		s.DebounceToken = s.lastToken
		effects = append(effects, ScheduleDebounce{Token: s.DebounceToken})
		s.Version++

	case DebounceElapsed:
		if ev.Token == 0 || ev.Token != s.DebounceToken {
			return s, nil
		}
		s.DebounceToken = 0
		effects = issue(&s, effects)

	case PageRequested:
		page := ev.Page
		if page > s.TotalPages {
			page = s.TotalPages
		}
		if page < 1 {
			page = 1
		}
		s.Filters.Page = page
		effects = disarm(&s, effects)
		effects = issue(&s, effects)

	case SearchRequested:
		s.Filters.Page = 1
		effects = disarm(&s, effects)
		effects = issue(&s, effects)

	case SearchSettled:
		if ev.Generation != s.Generation || s.Request.Status != StatusPending || ev.Cancelled {
			return s, nil
		}
		if ev.Result != nil {
			page := *ev.Result
			if page.TotalPages < 1 {
				page.TotalPages = 1
			}
			s.TotalPages = page.TotalPages
			s.Request = RequestState{Status: StatusSucceeded, Result: &page}
		} else {
			s.Request = RequestState{Status: StatusFailed, Message: ev.Message}
		}
		s.Version++
	}
	return s, effects
}

func disarm(s *State, effects []Effect) []Effect {
	if s.DebounceToken != 0 {
		effects = append(effects, CancelDebounce{Token: s.DebounceToken})
		s.DebounceToken = 0
	}
	return effects
}

// issue supersedes any in-flight request and starts a new generation.
func issue(s *State, effects []Effect) []Effect {
	if s.Request.Status == StatusPending {
		effects = append(effects, CancelSearch{Generation: s.Generation})
	}
	s.Generation++
	s.Request = RequestState{Status: StatusPending}
	s.Version++
	return append(effects, IssueSearch{Generation: s.Generation, Filters: s.Filters})
}
