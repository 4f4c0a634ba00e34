package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sonerady/dires-server-sub002/app/models"
)

// scriptedProvider replays canned submit results and job states.
type scriptedProvider struct {
	submitErrs []error
	states     map[string][]JobState
	submits    int
	polls      map[string]int
}

func (p *scriptedProvider) Submit(ctx context.Context, spec JobSpec) (string, error) {
	p.submits++
	if len(p.submitErrs) >= p.submits {
		if err := p.submitErrs[p.submits-1]; err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("job-%d", p.submits), nil
}

func (p *scriptedProvider) Get(ctx context.Context, jobID string) (JobState, error) {
	if p.polls == nil {
		p.polls = make(map[string]int)
	}
	p.polls[jobID]++
	states := p.states[jobID]
	if len(states) == 0 {
		return JobState{}, errors.New("no state scripted")
	}
	idx := p.polls[jobID] - 1
	if idx >= len(states) {
		idx = len(states) - 1
	}
	return states[idx], nil
}

func fastConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		MaxAttempts:  5,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}
}

func TestRunSucceedsAfterProcessing(t *testing.T) {
	provider := &scriptedProvider{
		states: map[string][]JobState{
			"job-1": {
				{Status: ProviderStatusStarting},
				{Status: ProviderStatusProcessing},
				{Status: ProviderStatusSucceeded, OutputURL: "https://cdn.example.com/out.png"},
			},
		},
	}
	outcome := NewPoller(provider, fastConfig()).Run(context.Background(), JobSpec{Model: "test"})

	if !outcome.Succeeded() {
		t.Fatalf("expected success, got status %q (%s)", outcome.Status, outcome.ErrorMsg)
	}
	if outcome.OutputURL != "https://cdn.example.com/out.png" {
		t.Fatalf("unexpected output url %q", outcome.OutputURL)
	}
	if outcome.Submissions != 1 {
		t.Fatalf("expected 1 submission, got %d", outcome.Submissions)
	}
	if outcome.PollAttempts != 3 {
		t.Fatalf("expected 3 poll attempts, got %d", outcome.PollAttempts)
	}
}

func TestRunResubmitsOnRetryableFailure(t *testing.T) {
	provider := &scriptedProvider{
		states: map[string][]JobState{
			"job-1": {{Status: ProviderStatusFailed, ErrorMsg: "Service is temporarily unavailable"}},
			"job-2": {{Status: ProviderStatusFailed, ErrorMsg: "Service is temporarily unavailable"}},
			"job-3": {{Status: ProviderStatusSucceeded, OutputURL: "https://cdn.example.com/out.png"}},
		},
	}
	outcome := NewPoller(provider, fastConfig()).Run(context.Background(), JobSpec{Model: "test"})

	if !outcome.Succeeded() {
		t.Fatalf("expected success after resubmissions, got %q (%s)", outcome.Status, outcome.ErrorMsg)
	}
	if outcome.Submissions != 3 {
		t.Fatalf("expected 3 submissions, got %d", outcome.Submissions)
	}
}

func TestRunStopsRetryingAfterBudget(t *testing.T) {
	provider := &scriptedProvider{
		states: map[string][]JobState{
			"job-1": {{Status: ProviderStatusFailed, ErrorMsg: "rate limit"}},
			"job-2": {{Status: ProviderStatusFailed, ErrorMsg: "rate limit"}},
			"job-3": {{Status: ProviderStatusFailed, ErrorMsg: "rate limit"}},
			"job-4": {{Status: ProviderStatusFailed, ErrorMsg: "rate limit"}},
		},
	}
	outcome := NewPoller(provider, fastConfig()).Run(context.Background(), JobSpec{Model: "test"})

	if outcome.Status != models.GenerationStatusFailed {
		t.Fatalf("expected failed, got %q", outcome.Status)
	}
	if outcome.Class != ClassRetryable {
		t.Fatalf("expected retryable class, got %q", outcome.Class)
	}
	if outcome.Submissions != 4 {
		t.Fatalf("expected 4 submissions (1 + 3 retries), got %d", outcome.Submissions)
	}
}

func TestRunSkipFailurePropagatesWithoutRetry(t *testing.T) {
	provider := &scriptedProvider{
		states: map[string][]JobState{
			"job-1": {{Status: ProviderStatusFailed, ErrorMsg: "flagged by safety checker"}},
		},
	}
	outcome := NewPoller(provider, fastConfig()).Run(context.Background(), JobSpec{Model: "test"})

	if outcome.Class != ClassSkip {
		t.Fatalf("expected skip class, got %q", outcome.Class)
	}
	if provider.submits != 1 {
		t.Fatalf("expected no resubmission for skip, got %d submissions", provider.submits)
	}
}

func TestPollTimesOutAfterAttemptBudget(t *testing.T) {
	provider := &scriptedProvider{
		states: map[string][]JobState{
			"job-1": {{Status: ProviderStatusProcessing}},
		},
	}
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	outcome := NewPoller(provider, cfg).Poll(context.Background(), "job-1")

	if outcome.Status != models.GenerationStatusTimedOut {
		t.Fatalf("expected timed out, got %q", outcome.Status)
	}
	if outcome.Class != ClassFatal {
		t.Fatalf("expected fatal class, got %q", outcome.Class)
	}
	if outcome.PollAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", outcome.PollAttempts)
	}
}

func TestPollSuccessWithoutOutputIsFatal(t *testing.T) {
	provider := &scriptedProvider{
		states: map[string][]JobState{
			"job-1": {{Status: ProviderStatusSucceeded}},
		},
	}
	outcome := NewPoller(provider, fastConfig()).Poll(context.Background(), "job-1")

	if outcome.Status != models.GenerationStatusFailed {
		t.Fatalf("expected failed, got %q", outcome.Status)
	}
	if outcome.Class != ClassFatal {
		t.Fatalf("expected fatal class, got %q", outcome.Class)
	}
}

func TestPollStopsOnContextCancel(t *testing.T) {
	provider := &scriptedProvider{
		states: map[string][]JobState{
			"job-1": {{Status: ProviderStatusProcessing}},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastConfig()
	cfg.PollInterval = time.Minute
	outcome := NewPoller(provider, cfg).Poll(ctx, "job-1")

	if outcome.Status != models.GenerationStatusCanceled {
		t.Fatalf("expected canceled, got %q", outcome.Status)
	}
}
