package storyteller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/storyteller/internal/ai"
	"github.com/KaramelBytes/storyteller/internal/dataset"
	"github.com/KaramelBytes/storyteller/internal/sandbox"
	"github.com/KaramelBytes/storyteller/internal/session"
)

// UserMessage turns an action error into one sentence for the page. It
// never returns an empty string for a non-nil error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		cfgErr   *ai.ConfigurationError
		parseErr *dataset.ParseError
		execErr  *sandbox.ExecutionError
		complErr *CompletionError
	)
	switch {
	case errors.Is(err, ErrNoDataset):
		return "Upload a CSV file first."
	case errors.Is(err, session.ErrBusy):
		return "Still working on your previous request. Wait for it to finish and try again."
	case errors.Is(err, session.ErrStale):
		return "The data changed while this request was running, so its result was discarded."
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("The completion service is not configured: %s.", cfgErr.Reason)
	case errors.As(err, &parseErr):
		kind := "a CSV file"
		if strings.EqualFold(filepath.Ext(parseErr.Name), ".xlsx") {
			kind = "an Excel workbook"
		}
		return fmt.Sprintf("Could not read %s as %s: %v.", parseErr.Name, kind, parseErr.Err)
	case errors.As(err, &complErr):
		return completionMessage(complErr.Err)
	case errors.As(err, &execErr):
		switch execErr.Stage {
		case sandbox.StageParse:
			return fmt.Sprintf("The suggested chart code could not be parsed: %v", execErr.Err)
		case sandbox.StageResult:
			return fmt.Sprintf("The suggested code did not produce a chart: %v", execErr.Err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "The suggested chart code took too long to run."
		}
		return fmt.Sprintf("The suggested chart code failed: %v", execErr.Err)
	}
	return fmt.Sprintf("An error occurred: %v", err)
}

func completionMessage(err error) string {
	var (
		auth    *ai.AuthError
		rate    *ai.RateLimitError
		quota   *ai.QuotaExceededError
		missing *ai.ModelNotFoundError
		bad     *ai.BadRequestError
		server  *ai.ServerError
		down    *ai.UnreachableError
	)
	switch {
	case errors.As(err, &auth):
		return "The completion service rejected the API key. Check your configuration."
	case errors.As(err, &rate):
		if rate.RetryAfter > 0 {
			return fmt.Sprintf("The completion service is rate limiting requests. Try again in %s.", rate.RetryAfter.Round(time.Second))
		}
		return "The completion service is rate limiting requests. Try again shortly."
	case errors.As(err, &quota):
		return "The completion service quota is exhausted."
	case errors.As(err, &missing):
		return "The configured model is not available from the completion service."
	case errors.As(err, &bad):
		return fmt.Sprintf("The completion service refused the request: %s", bad.Message)
	case errors.As(err, &server):
		return "The completion service had an internal error. Try again."
	case errors.As(err, &down):
		return "Could not reach the completion service."
	case errors.Is(err, context.DeadlineExceeded):
		return "The completion service did not answer in time."
	case errors.Is(err, context.Canceled):
		return "The request was canceled."
	case errors.Is(err, ai.ErrEmptyCompletion):
		return "The completion service returned an empty answer. Try again."
	}
	return fmt.Sprintf("The completion service failed: %v", err)
}
