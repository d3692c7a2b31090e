package storyteller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/KaramelBytes/storyteller/internal/ai"
	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/sandbox"
	"github.com/KaramelBytes/storyteller/internal/session"
)

func TestUserMessage(t *testing.T) {
	wrap := func(err error) error { return &CompletionError{Action: ActionInsights, Err: err} }
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"no dataset", ErrNoDataset, "Upload a CSV file first."},
		{"busy", session.ErrBusy, "Still working on your previous request. Wait for it to finish and try again."},
		{"config", &ai.ConfigurationError{Key: "api_key", Reason: "GEMINI_API_KEY is missing"},
			"The completion service is not configured: GEMINI_API_KEY is missing."},
		{"stale", session.ErrStale, "The data changed while this request was running, so its result was discarded."},
		{"parse", &dataset.ParseError{Name: "x.csv", Err: errors.New("empty file")}, "Could not read x.csv as a CSV file: empty file."},
		{"parse workbook", &dataset.ParseError{Name: "Q3.XLSX", Err: errors.New("no header row")},
			"Could not read Q3.XLSX as an Excel workbook: no header row."},
		{"auth", wrap(&ai.AuthError{APIError: &ai.APIError{StatusCode: 401}}),
			"The completion service rejected the API key. Check your configuration."},
		{"rate", wrap(&ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429}, RetryAfter: 30 * time.Second}),
			"The completion service is rate limiting requests. Try again in 30s."},
		{"server", wrap(&ai.ServerError{APIError: &ai.APIError{StatusCode: 502}}), "The completion service had an internal error. Try again."},
		{"timeout", wrap(context.DeadlineExceeded), "The completion service did not answer in time."},
		{"empty", wrap(ai.ErrEmptyCompletion), "The completion service returned an empty answer. Try again."},
		{"exec parse", &sandbox.ExecutionError{Stage: sandbox.StageParse, Err: errors.New("got end of file")},
			"The suggested chart code could not be parsed: got end of file"},
		{"exec result", &sandbox.ExecutionError{Stage: sandbox.StageResult, Err: errors.New("fig is a int, not a figure")},
			"The suggested code did not produce a chart: fig is a int, not a figure"},
		{"exec slow", &sandbox.ExecutionError{Stage: sandbox.StageRun, Err: context.DeadlineExceeded},
			"The suggested chart code took too long to run."},
		{"other", errors.New("boom"), "An error occurred: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}
