package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	launchServerURL   string
	launchSecret      string
	launchPrompt      string
	launchRepoURL     string
	launchCloneBranch string
	launchPushBranch  string
	launchWebhookURL  string
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Request a new execution unit from a running server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if launchPrompt == "" || launchRepoURL == "" {
			return fmt.Errorf("--prompt and --repo-url are required")
		}

		containerID := uuid.NewString()
		body, err := json.Marshal(map[string]string{
			"prompt":      launchPrompt,
			"repoUrl":     launchRepoURL,
			"cloneBranch": launchCloneBranch,
			"pushBranch":  launchPushBranch,
			"webhookUrl":  launchWebhookURL,
			"containerId": containerID,
		})
		if err != nil {
			return err
		}

		req, err := http.NewRequest(http.MethodPost, launchServerURL+"/api/launch", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if launchSecret != "" {
			req.Header.Set("Authorization", "Bearer "+launchSecret)
		}

		client := &http.Client{Timeout: 15 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("launch request failed: %w", err)
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("launch rejected: %d: %s", resp.StatusCode, string(data))
		}

		fmt.Printf("launch accepted: container %s\n", containerID)
		return nil
	},
}

func init() {
	launchCmd.Flags().StringVar(&launchServerURL, "server", "http://localhost:8080", "Overseer server URL")
	launchCmd.Flags().StringVar(&launchSecret, "secret", "", "Bearer secret for the server")
	launchCmd.Flags().StringVar(&launchPrompt, "prompt", "", "Task prompt for the unit (required)")
	launchCmd.Flags().StringVar(&launchRepoURL, "repo-url", "", "Target repository URL (required)")
	launchCmd.Flags().StringVar(&launchCloneBranch, "clone-branch", "main", "Branch to clone")
	launchCmd.Flags().StringVar(&launchPushBranch, "push-branch", "", "Branch to push results to")
	launchCmd.Flags().StringVar(&launchWebhookURL, "webhook-url", "", "Override callback URL handed to the unit")
	rootCmd.AddCommand(launchCmd)
}
