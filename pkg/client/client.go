// Package client is a thin HTTP wrapper around the gateway's REST API,
// for CLI and integration-test usage.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/emprops/job-gateway/pkg/admin"
	"github.com/emprops/job-gateway/pkg/admission"
)

const defaultTimeout = 10 * time.Second

// Client wraps the gateway's HTTP API for easy CLI usage.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a new gateway client against addr, e.g.
// "http://localhost:8189".
func NewClient(addr, token string) *Client {
	return &Client{
		baseURL: addr,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SubmitJob submits a job and returns its assigned id.
func (c *Client) SubmitJob(sub admission.Submission) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var resp struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
		Error   string `json:"error"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/jobs", sub, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("submit job: %s", resp.Error)
	}
	return resp.JobID, nil
}

// GetJob fetches a single job record by id.
func (c *Client) GetJob(jobID string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var job map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// ListJobs lists jobs, optionally filtered by status.
func (c *Client) ListJobs(status string, limit, offset int) ([]map[string]any, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("offset", fmt.Sprintf("%d", offset))

	var resp struct {
		Jobs  []map[string]any `json:"jobs"`
		Total int              `json:"total"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs?"+q.Encode(), nil, &resp); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return resp.Jobs, resp.Total, nil
}

// CleanupResponse mirrors the wire shape of POST /api/cleanup.
type CleanupResponse struct {
	WorkersReset int      `json:"workers_reset"`
	JobsCleaned  int      `json:"jobs_cleaned"`
	WorkersFound []string `json:"workers_found"`
	Details      []string `json:"details"`
}

// DeleteMachineResponse mirrors the wire shape of DELETE /api/machines/:id.
type DeleteMachineResponse struct {
	MachineID      string   `json:"machine_id"`
	WorkersFound   []string `json:"workers_found"`
	WorkersCleaned int      `json:"workers_cleaned"`
	Message        string   `json:"message"`
}

// Cleanup runs an admin reconciliation pass.
func (c *Client) Cleanup(req admin.CleanupRequest) (CleanupResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var resp CleanupResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/cleanup", req, &resp); err != nil {
		return CleanupResponse{}, fmt.Errorf("cleanup: %w", err)
	}
	return resp, nil
}

// DeleteMachine requests deletion of a machine and its workers.
func (c *Client) DeleteMachine(machineID string) (DeleteMachineResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var resp DeleteMachineResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/machines/"+url.PathEscape(machineID), nil, &resp); err != nil {
		return DeleteMachineResponse{}, fmt.Errorf("delete machine %s: %w", machineID, err)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(payload))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
