package generation

import "context"

// Provider statuses as reported by the external generation API.
const (
	ProviderStatusStarting   = "starting"
	ProviderStatusProcessing = "processing"
	ProviderStatusSucceeded  = "succeeded"
	ProviderStatusFailed     = "failed"
	ProviderStatusCanceled   = "canceled"
)

// JobSpec is the input for a single generation job.
type JobSpec struct {
	Model string                 `json:"model,omitempty"`
	Input map[string]interface{} `json:"input"`
}

// JobState is one observation of a provider-side job.
type JobState struct {
	Status    string `json:"status"`
	OutputURL string `json:"output_url,omitempty"`
	ErrorMsg  string `json:"error,omitempty"`
}

// InProgress reports whether the provider is still working on the job.
func (s JobState) InProgress() bool {
	return s.Status == ProviderStatusStarting || s.Status == ProviderStatusProcessing
}

// Provider is the minimal contract the core depends on. Concrete providers
// (HTTP generation APIs) implement it; tests substitute fakes.
type Provider interface {
	Submit(ctx context.Context, spec JobSpec) (jobID string, err error)
	Get(ctx context.Context, jobID string) (JobState, error)
}
