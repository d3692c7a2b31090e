// Package session holds per-browser state: the uploaded dataset and the
// latest results of the two actions.
package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KaramelBytes/storyteller/internal/chart"
	"github.com/KaramelBytes/storyteller/internal/dataset"
)

// ErrBusy is returned by Begin while another action holds the session.
var ErrBusy = errors.New("another action is still running for this session")

// ErrStale is returned when a result is committed after the session moved
// on: a new upload or a reset happened while the action ran.
var ErrStale = errors.New("session changed while the action was running")

// Result is what the user currently sees. Empty fields are absent.
type Result struct {
	Insights string
	Code     string
	Chart    *chart.Image
}

// Empty reports whether nothing has been produced yet.
func (r Result) Empty() bool {
	return r.Insights == "" && r.Code == "" && r.Chart == nil
}

// Session is one user's workspace. All methods are safe for concurrent use.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	data     *dataset.Dataset
	result   Result
	lastSeen time.Time
	// gen advances on every upload and reset.
	gen  uint64
	busy atomic.Bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, Created: now, lastSeen: now}
}

// Dataset returns the uploaded dataset or nil.
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// SetDataset installs a new upload. Results computed for the previous
// dataset are dropped with it.
func (s *Session) SetDataset(d *dataset.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = d
	s.result = Result{}
	s.gen++
}

// Snapshot returns the dataset with the generation it belongs to. Pass the
// generation to SetInsights or SetVisualization when committing a result
// computed from d.
func (s *Session) Snapshot() (d *dataset.Dataset, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, s.gen
}

// Result returns a snapshot of the current results.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// SetInsights replaces the insights text. Code and chart are untouched.
// Nothing is written and ErrStale is returned when gen is no longer
// current.
func (s *Session) SetInsights(gen uint64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStale
	}
	s.result.Insights = text
	return nil
}

// SetVisualization replaces the code and chart together, under the same
// generation rule as SetInsights.
func (s *Session) SetVisualization(gen uint64, code string, img chart.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStale
	}
	s.result.Code = code
	s.result.Chart = &img
	return nil
}

// Clear drops all three results at once. The dataset stays.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = Result{}
	s.gen++
}

// Begin marks the session as running an action. The returned func releases
// it and must be called exactly once.
func (s *Session) Begin() (end func(), err error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() { once.Do(func() { s.busy.Store(false) }) }, nil
}

// Busy reports whether an action is in flight.
func (s *Session) Busy() bool { return s.busy.Load() }

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || s.busy.Load() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen) > ttl
}
