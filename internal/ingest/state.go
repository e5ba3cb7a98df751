package ingest

import (
	"sync"
	"time"
)

// StateSnapshot is a point-in-time copy of indexing progress
type StateSnapshot struct {
	InProgress     bool       `json:"in_progress"`
	ExpectedTotal  *int       `json:"expected_total_messages"`
	FetchedCount   int        `json:"fetched_messages"`
	IndexedCount   int        `json:"indexed_messages"`
	MissedCount    int        `json:"missed_messages"`
	MissedRanges   []string   `json:"missed_ranges"`
	LastIndexed    *time.Time `json:"last_indexed"`
	NextRefresh    *time.Time `json:"next_refresh"`
	LastError      string     `json:"last_error,omitempty"`
}

// state tracks indexing progress behind a mutex. All exported access goes
// through Snapshot.
type state struct {
	mu sync.Mutex

	inProgress    bool
	expectedTotal *int
	fetched       int
	indexed       int
	missed        int
	missedRanges  []string
	lastIndexed   *time.Time
	nextRefresh   *time.Time
	lastError     string
}

func (s *state) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranges := make([]string, len(s.missedRanges))
	copy(ranges, s.missedRanges)

	return StateSnapshot{
		InProgress:    s.inProgress,
		ExpectedTotal: s.expectedTotal,
		FetchedCount:  s.fetched,
		IndexedCount:  s.indexed,
		MissedCount:   s.missed,
		MissedRanges:  ranges,
		LastIndexed:   s.lastIndexed,
		NextRefresh:   s.nextRefresh,
		LastError:     s.lastError,
	}
}

// tryBegin marks a run as started; returns false if one is already running.
func (s *state) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inProgress {
		return false
	}
	s.inProgress = true
	s.lastError = ""
	s.missedRanges = nil
	s.missed = 0
	s.fetched = 0
	return true
}

func (s *state) finish(indexed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inProgress = false
	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.indexed = indexed
	now := time.Now()
	s.lastIndexed = &now
}

func (s *state) setExpectedTotal(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expectedTotal == nil {
		s.expectedTotal = &total
	}
}

func (s *state) addFetched(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched += n
}

func (s *state) addMissedRange(r string, pageSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.missedRanges {
		if existing == r {
			return
		}
	}
	s.missedRanges = append(s.missedRanges, r)
	s.missed += pageSize
}

func (s *state) setIndexed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed = n
}

func (s *state) setNextRefresh(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRefresh = &t
}

func (s *state) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err.Error()
}

// LastError reports the most recent failure, if any.
func (s *state) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
