// Package unit talks to the task server running inside a provisioned
// execution unit. This is a separate surface from the Machine API: "machine
// started" and "application accepting requests" are different conditions.
package unit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// instanceHeader pins a request to a specific instance so a load balancer in
// front of the app cannot route it to a different, unready unit.
const instanceHeader = "fly-force-instance-id"

// Client addresses one execution unit.
type Client struct {
	baseURL    string
	instanceID string
	http       *http.Client
}

// NewClient creates a unit client. instanceID may be empty when the base URL
// already addresses a single unit directly.
func NewClient(baseURL, instanceID string) *Client {
	return &Client{
		baseURL:    baseURL,
		instanceID: instanceID,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

// Ready probes the unit's status endpoint once.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return err
	}
	c.pin(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unit status returned %d", resp.StatusCode)
	}
	return nil
}

// SendTask delivers the task prompt to the unit's message endpoint.
func (c *Client) SendTask(ctx context.Context, prompt string) error {
	body, err := json.Marshal(map[string]string{"message": prompt})
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.pin(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("unit message endpoint returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

func (c *Client) pin(req *http.Request) {
	if c.instanceID != "" {
		req.Header.Set(instanceHeader, c.instanceID)
	}
}
