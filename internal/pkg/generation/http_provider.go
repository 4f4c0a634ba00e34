package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sonerady/dires-server-sub002/internal/pkg/env"
)

// HTTPProvider talks to the external generation API over JSON/HTTP. The
// core only depends on the Provider interface; this is the production
// implementation behind it.
type HTTPProvider struct {
	BaseURL  string
	APIToken string

	HTTPClient *http.Client
}

// NewHTTPProviderFromEnv builds the provider client from environment config.
func NewHTTPProviderFromEnv() *HTTPProvider {
	return &HTTPProvider{
		BaseURL:  strings.TrimRight(env.GetEnv("GENERATION_API_URL", ""), "/"),
		APIToken: strings.TrimSpace(env.GetEnv("GENERATION_API_TOKEN", "")),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type submitRequest struct {
	Model string                 `json:"model,omitempty"`
	Input map[string]interface{} `json:"input"`
}

type jobResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Submit creates a job and returns the provider-issued job id.
func (c *HTTPProvider) Submit(ctx context.Context, spec JobSpec) (string, error) {
	if c.BaseURL == "" {
		return "", errors.New("GENERATION_API_URL is not configured")
	}

	payload, err := json.Marshal(submitRequest{Model: spec.Model, Input: spec.Input})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/jobs", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("generation submit failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out jobResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("generation submit returned empty job id")
	}
	return out.ID, nil
}

// Get fetches the current state of a job.
func (c *HTTPProvider) Get(ctx context.Context, jobID string) (JobState, error) {
	if c.BaseURL == "" {
		return JobState{}, errors.New("GENERATION_API_URL is not configured")
	}
	if strings.TrimSpace(jobID) == "" {
		return JobState{}, errors.New("job id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return JobState{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return JobState{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return JobState{}, fmt.Errorf("generation poll failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out jobResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return JobState{}, err
	}

	return JobState{
		Status:    strings.ToLower(strings.TrimSpace(out.Status)),
		OutputURL: firstOutputURL(out.Output),
		ErrorMsg:  out.Error,
	}, nil
}

// firstOutputURL extracts the usable output reference. Providers return
// either a single URL string or an array of URLs.
func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return strings.TrimSpace(many[0])
	}
	return ""
}
