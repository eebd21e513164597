// Package sweepsdk is a minimal client for the Sweep HTTP API. Workers use
// it to draw trials and report objectives from evaluation processes.
package sweepsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one experiment on one Sweep server.
type Client struct {
	BaseURL       string
	ExperimentKey string
	BearerToken   string
	HTTPClient    *http.Client
	Timeout       time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, experimentKey string) *Client {
	return &Client{
		BaseURL:       baseURL,
		ExperimentKey: experimentKey,
		Timeout:       10 * time.Second,
	}
}

// Trial is the API trial model.
type Trial struct {
	ID            string         `json:"id"`
	ExperimentKey string         `json:"experiment_key"`
	Values        map[string]any `json:"values"`
	State         string         `json:"state"`
	Objective     *float64       `json:"objective,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	CreatedAt     string         `json:"created_at"`
	CompletedAt   string         `json:"completed_at,omitempty"`
}

// Experiment is the API experiment model.
type Experiment struct {
	Key         string `json:"key"`
	Direction   string `json:"direction"`
	Strategy    string `json:"strategy"`
	Seed        uint64 `json:"seed"`
	Fingerprint string `json:"fingerprint"`
	CreatedAt   string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Experiment fetches the experiment record.
func (c *Client) Experiment(ctx context.Context) (Experiment, error) {
	var resp Experiment
	err := c.do(ctx, http.MethodGet, c.experimentPath(""), nil, &resp)
	return resp, err
}

// Suggest asks the server to generate the next pending trial.
func (c *Client) Suggest(ctx context.Context) (Trial, error) {
	var resp Trial
	err := c.do(ctx, http.MethodPost, c.experimentPath("trials"), map[string]any{}, &resp)
	return resp, err
}

// Complete reports a trial objective.
func (c *Client) Complete(ctx context.Context, trialID string, objective float64) (Trial, error) {
	var resp Trial
	endpoint := fmt.Sprintf("v0/trials/%s/complete", url.PathEscape(trialID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"objective": objective}, &resp)
	return resp, err
}

// Fail marks a trial failed.
func (c *Client) Fail(ctx context.Context, trialID, reason string) (Trial, error) {
	var resp Trial
	endpoint := fmt.Sprintf("v0/trials/%s/fail", url.PathEscape(trialID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"reason": reason}, &resp)
	return resp, err
}

// Optimum returns the best complete trial.
func (c *Client) Optimum(ctx context.Context) (Trial, error) {
	var resp Trial
	err := c.do(ctx, http.MethodGet, c.experimentPath("optimum"), nil, &resp)
	return resp, err
}

// Trials lists trials, optionally filtered by state.
func (c *Client) Trials(ctx context.Context, state string) ([]Trial, error) {
	endpoint := c.experimentPath("trials")
	if state != "" {
		endpoint += "?state=" + url.QueryEscape(state)
	}
	var resp []Trial
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) experimentPath(p string) string {
	key := url.PathEscape(c.ExperimentKey)
	base := fmt.Sprintf("v0/experiments/%s", key)
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
