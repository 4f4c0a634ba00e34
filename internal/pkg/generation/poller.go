package generation

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sonerady/dires-server-sub002/app/models"
)

const (
	// DefaultPollInterval and DefaultMaxAttempts bound a single job at
	// roughly ten minutes of polling.
	DefaultPollInterval = 10 * time.Second
	DefaultMaxAttempts  = 60

	// DefaultMaxRetries bounds resubmissions of the whole job after a
	// retryable failure; DefaultRetryBackoff is the linear backoff base.
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 4 * time.Second
)

// Config tunes the poller. Zero values fall back to the defaults.
type Config struct {
	PollInterval time.Duration
	MaxAttempts  int
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	return c
}

// Outcome is the terminal result of driving one job spec to completion,
// including resubmissions.
type Outcome struct {
	ProviderJobID string
	Status        string // models.GenerationStatus*
	Class         FailureClass
	OutputURL     string
	ErrorMsg      string
	PollAttempts  int
	Submissions   int
}

// Succeeded reports whether the job produced usable output.
func (o Outcome) Succeeded() bool {
	return o.Status == models.GenerationStatusSucceeded
}

// Poller drives external generation jobs to a terminal state.
type Poller struct {
	provider Provider
	cfg      Config
}

// NewPoller creates a poller over the given provider.
func NewPoller(provider Provider, cfg Config) *Poller {
	return &Poller{provider: provider, cfg: cfg.withDefaults()}
}

// Poll observes a submitted job until it reaches a terminal state. The wait
// between observations selects on ctx, so a canceled caller stops
// immediately and other settlements are never blocked.
func (p *Poller) Poll(ctx context.Context, jobID string) Outcome {
	outcome := Outcome{ProviderJobID: jobID, Class: ClassNone}

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		outcome.PollAttempts = attempt

		state, err := p.provider.Get(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				outcome.Status = models.GenerationStatusCanceled
				outcome.Class = ClassFatal
				outcome.ErrorMsg = ctx.Err().Error()
				return outcome
			}
			// Observation failures burn an attempt but are not terminal;
			// the provider may just be briefly unreachable.
			log.Warnf("[Generation] poll %d for job %s failed: %v", attempt, jobID, err)
		} else {
			switch {
			case state.Status == ProviderStatusSucceeded:
				if state.OutputURL == "" {
					// Success without usable output is a lie we refuse to settle.
					outcome.Status = models.GenerationStatusFailed
					outcome.Class = ClassFatal
					outcome.ErrorMsg = "provider reported success without output"
					return outcome
				}
				outcome.Status = models.GenerationStatusSucceeded
				outcome.OutputURL = state.OutputURL
				return outcome
			case state.Status == ProviderStatusFailed:
				outcome.Status = models.GenerationStatusFailed
				outcome.Class = Classify(state.ErrorMsg)
				outcome.ErrorMsg = state.ErrorMsg
				return outcome
			case state.Status == ProviderStatusCanceled:
				outcome.Status = models.GenerationStatusCanceled
				outcome.Class = ClassFatal
				outcome.ErrorMsg = "canceled by provider"
				return outcome
			case !state.InProgress():
				log.Warnf("[Generation] job %s reported unknown status %q", jobID, state.Status)
			}
		}

		select {
		case <-ctx.Done():
			outcome.Status = models.GenerationStatusCanceled
			outcome.Class = ClassFatal
			outcome.ErrorMsg = ctx.Err().Error()
			return outcome
		case <-time.After(p.cfg.PollInterval):
		}
	}

	outcome.Status = models.GenerationStatusTimedOut
	outcome.Class = ClassFatal
	outcome.ErrorMsg = "poll attempt budget exhausted"
	return outcome
}

// Run submits the job and drives it to completion, resubmitting on retryable
// failures with linear backoff. Skip and fatal failures propagate
// immediately without consuming retries.
func (p *Poller) Run(ctx context.Context, spec JobSpec) Outcome {
	var outcome Outcome

	for submission := 1; submission <= p.cfg.MaxRetries+1; submission++ {
		jobID, err := p.provider.Submit(ctx, spec)
		if err != nil {
			outcome = Outcome{
				Status:      models.GenerationStatusFailed,
				Class:       Classify(err.Error()),
				ErrorMsg:    err.Error(),
				Submissions: submission,
			}
			if ctx.Err() != nil {
				outcome.Status = models.GenerationStatusCanceled
				outcome.Class = ClassFatal
				return outcome
			}
		} else {
			log.Infof("[Generation] submitted job %s (submission %d)", jobID, submission)
			outcome = p.Poll(ctx, jobID)
			outcome.Submissions = submission
		}

		if outcome.Class != ClassRetryable || submission > p.cfg.MaxRetries {
			return outcome
		}

		backoff := time.Duration(submission) * p.cfg.RetryBackoff
		log.Infof("[Generation] retryable failure (%s), resubmitting in %s", outcome.ErrorMsg, backoff)
		select {
		case <-ctx.Done():
			outcome.Status = models.GenerationStatusCanceled
			outcome.Class = ClassFatal
			outcome.ErrorMsg = ctx.Err().Error()
			return outcome
		case <-time.After(backoff):
		}
	}

	return outcome
}
