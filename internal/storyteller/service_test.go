package storyteller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KaramelBytes/storyteller/internal/ai"
	"github.com/KaramelBytes/storyteller/internal/chart"
	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/sandbox"
	"github.com/KaramelBytes/storyteller/internal/session"
)

type fakeCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
	block   chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

const inventory = `item,stock,price
bolt,120,0.1
nut,300,0.05
gear,15,4.5
`

const barCode = "```python\nax.bar(df['item'], df['stock'])\nax.set_title('Stock')\n```\nThis chart shows stock."

func newSession(t *testing.T) *session.Session {
	t.Helper()
	d, err := dataset.Load("inventory.csv", strings.NewReader(inventory), dataset.DefaultOptions())
	require.NoError(t, err)
	s := session.NewManager(0).Create()
	s.SetDataset(d)
	return s
}

func TestGenerateInsightsStoresTextVerbatim(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"## Summary\n\n1. Gears are scarce."}}
	svc := New(fc, nil)
	sess := newSession(t)

	text, err := svc.GenerateInsights(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "## Summary\n\n1. Gears are scarce.", text)
	assert.Equal(t, text, sess.Result().Insights)

	require.Len(t, fc.prompts, 1)
	assert.Contains(t, fc.prompts[0], "expert data analyst")
	assert.Contains(t, fc.prompts[0], "stock")
	assert.False(t, sess.Busy())
}

func TestSuggestVisualizationCommitsCodeAndChart(t *testing.T) {
	fc := &fakeCompleter{replies: []string{barCode}}
	svc := New(fc, nil)
	sess := newSession(t)

	vis, err := svc.SuggestVisualization(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "ax.bar(df['item'], df['stock'])\nax.set_title('Stock')", vis.Code)
	assert.Equal(t, "Stock", vis.Figure.Axes[0].Title)
	assert.Equal(t, chart.PNG, vis.Image.Format)

	r := sess.Result()
	assert.Equal(t, vis.Code, r.Code)
	require.NotNil(t, r.Chart)
	assert.Equal(t, vis.Image.Data, r.Chart.Data)
	assert.Contains(t, fc.prompts[0], "visualization specialist")
}

func TestUnfencedReplyRunsWhole(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	fc := &fakeCompleter{replies: []string{"ax.bar(df['item'], df['price'])"}}
	svc := New(fc, zap.New(core))
	sess := newSession(t)

	vis, err := svc.SuggestVisualization(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "ax.bar(df['item'], df['price'])", vis.Code)
	assert.Equal(t, 1, logs.FilterMessage("reply has no fenced block, running it whole").Len())

	fc.replies = []string{barCode}
	_, err = svc.SuggestVisualization(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("reply has no fenced block, running it whole").Len())
}

func TestActionsLeaveEachOtherAlone(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"insights v1", barCode, "insights v2"}}
	svc := New(fc, nil)
	sess := newSession(t)
	ctx := context.Background()

	_, err := svc.GenerateInsights(ctx, sess)
	require.NoError(t, err)
	_, err = svc.SuggestVisualization(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "insights v1", sess.Result().Insights)

	code := sess.Result().Code
	_, err = svc.GenerateInsights(ctx, sess)
	require.NoError(t, err)
	r := sess.Result()
	assert.Equal(t, "insights v2", r.Insights)
	assert.Equal(t, code, r.Code)
	assert.NotNil(t, r.Chart)
}

func TestFailedVisualizationKeepsPreviousChart(t *testing.T) {
	fc := &fakeCompleter{replies: []string{barCode, "ax.bar(df['item'], df['missing'])"}}
	svc := New(fc, nil)
	sess := newSession(t)
	ctx := context.Background()

	_, err := svc.SuggestVisualization(ctx, sess)
	require.NoError(t, err)
	before := sess.Result()

	_, err = svc.SuggestVisualization(ctx, sess)
	var xerr *sandbox.ExecutionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, sandbox.StageRun, xerr.Stage)
	assert.Equal(t, before, sess.Result())
}

func TestCompletionFailureKeepsPreviousInsights(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"kept"}}
	svc := New(fc, nil)
	sess := newSession(t)
	_, err := svc.GenerateInsights(context.Background(), sess)
	require.NoError(t, err)

	fc.err = &ai.UnreachableError{Host: "example.test", Err: errors.New("dial tcp: refused")}
	_, err = svc.GenerateInsights(context.Background(), sess)
	var cerr *CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ActionInsights, cerr.Action)
	assert.Equal(t, "kept", sess.Result().Insights)
	assert.Equal(t, "Could not reach the completion service.", UserMessage(err))
}

func TestActionsNeedADataset(t *testing.T) {
	svc := New(&fakeCompleter{replies: []string{"x"}}, nil)
	sess := session.NewManager(0).Create()
	_, err := svc.GenerateInsights(context.Background(), sess)
	assert.ErrorIs(t, err, ErrNoDataset)
	_, err = svc.SuggestVisualization(context.Background(), sess)
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestOverlappingActionsAreRejected(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"slow"}, block: make(chan struct{})}
	svc := New(fc, nil)
	sess := newSession(t)

	done := make(chan error, 1)
	go func() {
		_, err := svc.GenerateInsights(context.Background(), sess)
		done <- err
	}()
	require.Eventually(t, sess.Busy, time.Second, time.Millisecond)

	_, err := svc.SuggestVisualization(context.Background(), sess)
	assert.ErrorIs(t, err, session.ErrBusy)

	close(fc.block)
	require.NoError(t, <-done)
	assert.Equal(t, "slow", sess.Result().Insights)
}

func TestActionFinishingAfterUploadOrResetIsDiscarded(t *testing.T) {
	other, err := dataset.Load("other.csv", strings.NewReader("city,visits\nOslo,3\n"), dataset.DefaultOptions())
	require.NoError(t, err)

	tests := []struct {
		name   string
		change func(*Service, *session.Session)
		want   *dataset.Dataset
	}{
		{"upload", func(_ *Service, sess *session.Session) { sess.SetDataset(other) }, other},
		{"reset", func(svc *Service, sess *session.Session) { svc.Reset(sess) }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{replies: []string{barCode}, block: make(chan struct{})}
			svc := New(fc, nil)
			sess := newSession(t)
			before := sess.Dataset()

			done := make(chan error, 1)
			go func() {
				_, err := svc.SuggestVisualization(context.Background(), sess)
				done <- err
			}()
			require.Eventually(t, sess.Busy, time.Second, time.Millisecond)

			tt.change(svc, sess)
			close(fc.block)
			err := <-done
			assert.ErrorIs(t, err, session.ErrStale)
			assert.True(t, sess.Result().Empty())
			want := tt.want
			if want == nil {
				want = before
			}
			assert.Same(t, want, sess.Dataset())
		})
	}
}

func TestResetClearsAllResults(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"text", barCode}}
	svc := New(fc, nil)
	sess := newSession(t)
	ctx := context.Background()
	_, err := svc.GenerateInsights(ctx, sess)
	require.NoError(t, err)
	_, err = svc.SuggestVisualization(ctx, sess)
	require.NoError(t, err)

	svc.Reset(sess)
	assert.True(t, sess.Result().Empty())
	assert.NotNil(t, sess.Dataset())
}
