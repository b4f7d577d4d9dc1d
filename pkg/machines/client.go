// Package machines is a minimal client for the remote Machine API used to
// provision ephemeral execution units.
package machines

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the public Machine API endpoint.
const DefaultBaseURL = "https://api.machines.dev"

// Client talks to the Machine API for a single app.
type Client struct {
	baseURL string
	app     string
	token   string
	http    *http.Client
}

// Config configures a Machine API client.
type Config struct {
	BaseURL string // defaults to DefaultBaseURL
	App     string
	Token   string
	HTTP    *http.Client // defaults to a 30s-timeout client
}

// NewClient creates a Machine API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.App == "" {
		return nil, fmt.Errorf("machine app name is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("machine API token is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, app: cfg.App, token: cfg.Token, http: httpClient}, nil
}

// CreateRequest describes one machine to provision.
type CreateRequest struct {
	Name  string
	Image string
	Env   map[string]string
	CPUs  int
	MemMB int
	Port  int // internal task-server port, exposed as the one service
}

// Machine is the subset of the create response we use.
type Machine struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// apiError embeds the non-2xx status and body so provisioning failures are
// diagnosable from the container row alone.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("machine API returned %d: %s", e.Status, e.Body)
}

// CreateMachine provisions one machine with a fixed resource shape, autostart
// and autostop disabled, and a single exposed service port.
func (c *Client) CreateMachine(ctx context.Context, req CreateRequest) (*Machine, error) {
	cpus := req.CPUs
	if cpus <= 0 {
		cpus = 2
	}
	memMB := req.MemMB
	if memMB <= 0 {
		memMB = 2048
	}
	port := req.Port
	if port <= 0 {
		port = 8080
	}

	payload := map[string]interface{}{
		"name": req.Name,
		"config": map[string]interface{}{
			"image": req.Image,
			"env":   req.Env,
			"guest": map[string]interface{}{
				"cpu_kind":  "shared",
				"cpus":      cpus,
				"memory_mb": memMB,
			},
			"auto_destroy": false,
			"services": []map[string]interface{}{
				{
					"protocol":      "tcp",
					"internal_port": port,
					"autostart":     false,
					"autostop":      false,
					"ports": []map[string]interface{}{
						{"port": 443, "handlers": []string{"http", "tls"}},
					},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create request: %w", err)
	}

	var machine Machine
	url := fmt.Sprintf("%s/v1/apps/%s/machines", c.baseURL, c.app)
	if err := c.do(ctx, http.MethodPost, url, bytes.NewReader(body), &machine); err != nil {
		return nil, fmt.Errorf("failed to create machine: %w", err)
	}
	if machine.ID == "" {
		return nil, fmt.Errorf("machine API returned no machine id")
	}
	return &machine, nil
}

// WaitStarted blocks until the machine reports started, polling the API's
// wait operation with a bounded per-call timeout under an overall deadline.
// "Started" only means the VM is up; application readiness is checked
// separately against the unit itself.
func (c *Client) WaitStarted(ctx context.Context, machineID string, deadline time.Duration) error {
	const perCall = 30 // seconds, API-side wait timeout per request

	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	url := fmt.Sprintf("%s/v1/apps/%s/machines/%s/wait?state=started&timeout=%d",
		c.baseURL, c.app, machineID, perCall)

	for {
		err := c.do(waitCtx, http.MethodGet, url, nil, nil)
		if err == nil {
			return nil
		}
		if waitCtx.Err() != nil {
			return fmt.Errorf("machine %s did not start within %s: %w", machineID, deadline, err)
		}
		// 408 is the API-side wait timeout and expected while the machine
		// boots; any other 4xx (machine gone, bad token) will never resolve
		// and fails the launch immediately.
		var apiErr *apiError
		if errors.As(err, &apiErr) &&
			apiErr.Status >= 400 && apiErr.Status < 500 &&
			apiErr.Status != http.StatusRequestTimeout {
			return fmt.Errorf("machine %s wait failed: %w", machineID, err)
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("machine %s did not start within %s", machineID, deadline)
		case <-time.After(2 * time.Second):
		}
	}
}

// DestroyMachine force-deletes a machine.
func (c *Client) DestroyMachine(ctx context.Context, machineID string) error {
	url := fmt.Sprintf("%s/v1/apps/%s/machines/%s?force=true", c.baseURL, c.app, machineID)
	if err := c.do(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return fmt.Errorf("failed to destroy machine %s: %w", machineID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse machine API response: %w", err)
		}
	}
	return nil
}
