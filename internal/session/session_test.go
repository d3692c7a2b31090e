package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/KaramelBytes/storyteller/internal/chart"
	"github.com/KaramelBytes/storyteller/internal/dataset"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func png(b byte) chart.Image { return chart.Image{Format: chart.PNG, Data: []byte{b}} }

func TestActionsOverwriteOnlyTheirOwnFields(t *testing.T) {
	s := NewManager(0).Create()
	assert.True(t, s.Result().Empty())
	_, gen := s.Snapshot()

	require.NoError(t, s.SetInsights(gen, "first"))
	require.NoError(t, s.SetVisualization(gen, "ax.bar(x, y)", png(1)))
	require.NoError(t, s.SetInsights(gen, "second"))

	r := s.Result()
	assert.Equal(t, "second", r.Insights)
	assert.Equal(t, "ax.bar(x, y)", r.Code)
	require.NotNil(t, r.Chart)
	assert.Equal(t, []byte{1}, r.Chart.Data)

	require.NoError(t, s.SetVisualization(gen, "ax.scatter(x, y)", png(2)))
	r = s.Result()
	assert.Equal(t, "second", r.Insights)
	assert.Equal(t, "ax.scatter(x, y)", r.Code)
	assert.Equal(t, []byte{2}, r.Chart.Data)
}

func TestClearDropsEverythingButTheDataset(t *testing.T) {
	s := NewManager(0).Create()
	d, err := dataset.Load("a.csv", strings.NewReader("a\n1\n"), dataset.DefaultOptions())
	require.NoError(t, err)
	s.SetDataset(d)
	_, gen := s.Snapshot()
	require.NoError(t, s.SetInsights(gen, "text"))
	require.NoError(t, s.SetVisualization(gen, "code", png(1)))

	s.Clear()
	assert.True(t, s.Result().Empty())
	assert.Same(t, d, s.Dataset())
}

func TestNewUploadClearsResults(t *testing.T) {
	s := NewManager(0).Create()
	_, gen := s.Snapshot()
	require.NoError(t, s.SetInsights(gen, "about the old file"))
	s.SetDataset(nil)
	assert.True(t, s.Result().Empty())
}

func TestCommitsForAnOlderGenerationAreDropped(t *testing.T) {
	s := NewManager(0).Create()
	d, err := dataset.Load("a.csv", strings.NewReader("a\n1\n"), dataset.DefaultOptions())
	require.NoError(t, err)
	s.SetDataset(d)
	_, gen := s.Snapshot()

	s.Clear()
	assert.ErrorIs(t, s.SetInsights(gen, "late"), ErrStale)
	assert.ErrorIs(t, s.SetVisualization(gen, "late", png(1)), ErrStale)
	assert.True(t, s.Result().Empty())

	_, gen = s.Snapshot()
	s.SetDataset(nil)
	assert.ErrorIs(t, s.SetInsights(gen, "late"), ErrStale)
	assert.True(t, s.Result().Empty())

	got, gen := s.Snapshot()
	assert.Nil(t, got)
	assert.NoError(t, s.SetInsights(gen, "current"))
	assert.Equal(t, "current", s.Result().Insights)
}

func TestBeginIsExclusive(t *testing.T) {
	s := NewManager(0).Create()
	end, err := s.Begin()
	require.NoError(t, err)
	assert.True(t, s.Busy())

	_, err = s.Begin()
	assert.ErrorIs(t, err, ErrBusy)

	end()
	end()
	assert.False(t, s.Busy())
	end2, err := s.Begin()
	require.NoError(t, err)
	end2()
}

func TestConcurrentBeginAdmitsOne(t *testing.T) {
	s := NewManager(0).Create()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.Begin(); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, admitted)
}

func TestManagerExpiresIdleSessions(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(10 * time.Minute)
	m.now = func() time.Time { return now }

	a := m.Create()
	b := m.Create()
	assert.NotEqual(t, a.ID, b.ID)

	now = now.Add(6 * time.Minute)
	_, ok := m.Get(a.ID)
	require.True(t, ok, "access refreshes the idle timer")

	now = now.Add(6 * time.Minute)
	_, ok = m.Get(a.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, m.Sweep(), "b has been idle for 12 minutes")
	assert.Equal(t, 1, m.Len())

	now = now.Add(11 * time.Minute)
	_, ok = m.Get(a.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestBusySessionsDoNotExpire(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(time.Minute)
	m.now = func() time.Time { return now }
	s := m.Create()
	end, err := s.Begin()
	require.NoError(t, err)
	now = now.Add(time.Hour)
	assert.Equal(t, 0, m.Sweep())
	end()
	assert.Equal(t, 1, m.Sweep())
}

func TestGetOrCreate(t *testing.T) {
	m := NewManager(0)
	s, created := m.GetOrCreate("")
	assert.True(t, created)
	again, created := m.GetOrCreate(s.ID)
	assert.False(t, created)
	assert.Same(t, s, again)

	m.Delete(s.ID)
	_, created = m.GetOrCreate(s.ID)
	assert.True(t, created)
}

func TestRunStopsWithContext(t *testing.T) {
	m := NewManager(time.Nanosecond)
	m.Create()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
