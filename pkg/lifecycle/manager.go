// Package lifecycle provisions one remote execution unit per launch job,
// waits for it to become reachable, hands it its task, and records the
// outcome. Jobs are handed off through an explicit queue so the "detached"
// nature of a launch is a first-class, inspectable state: the enqueuer
// returns immediately and a worker runs the job to completion.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/replayio/overseer/pkg/log"
	"github.com/replayio/overseer/pkg/store"
)

// LaunchJob is one request to provision a unit for a task.
type LaunchJob struct {
	ContainerID string // correlation id; a pending row must already exist
	Prompt      string
	RepoURL     string
	CloneBranch string
	PushBranch  string
	WebhookURL  string // defaults to the manager's own ingestion endpoint
}

// ProvisionSpec is what a backend needs to create one unit.
type ProvisionSpec struct {
	Name string
	Env  map[string]string
}

// Unit is a provisioned execution unit, addressable over HTTP.
type Unit struct {
	ID         string // backend identifier, used for destroy
	Name       string // the unit's real assigned name
	BaseURL    string
	InstanceID string // non-empty when requests must be pinned past a load balancer
}

// Provisioner creates and destroys execution units. The production
// implementation drives the remote Machine API; a docker-backed one serves
// local development.
type Provisioner interface {
	// Provision creates one unit and blocks until the backend reports it
	// started. "Started" does not imply the application is reachable.
	Provision(ctx context.Context, spec ProvisionSpec) (*Unit, error)
	// Destroy force-removes a unit. Best effort; callers may ignore errors.
	Destroy(ctx context.Context, id string) error
}

// unitClient is the slice of the unit HTTP surface the manager uses.
type unitClient interface {
	Ready(ctx context.Context) error
	SendTask(ctx context.Context, prompt string) error
}

// RepoChecker validates repository coordinates before provisioning.
type RepoChecker interface {
	Check(ctx context.Context, repoURL string) error
}

const (
	defaultWorkers       = 4
	defaultQueueSize     = 32
	defaultReadyInterval = 5 * time.Second
	defaultReadyDeadline = 3 * time.Minute
	maxErrorLen          = 160
)

// Config configures a Manager.
type Config struct {
	Store         store.Store
	Provisioner   Provisioner
	RepoChecker   RepoChecker // optional
	WebhookURL    string      // default callback URL handed to units
	WebhookSecret string
	Workers       int
	QueueSize     int
	ReadyInterval time.Duration
	ReadyDeadline time.Duration

	// newUnitClient is swappable for tests.
	newUnitClient func(baseURL, instanceID string) unitClient
}

// Manager consumes launch jobs from its queue.
type Manager struct {
	cfg  Config
	jobs chan LaunchJob
	wg   sync.WaitGroup
}

// NewManager validates the configuration and creates a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Provisioner == nil {
		return nil, fmt.Errorf("provisioner is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = defaultReadyInterval
	}
	if cfg.ReadyDeadline <= 0 {
		cfg.ReadyDeadline = defaultReadyDeadline
	}
	if cfg.newUnitClient == nil {
		cfg.newUnitClient = defaultUnitClient
	}
	return &Manager{cfg: cfg, jobs: make(chan LaunchJob, cfg.QueueSize)}, nil
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-m.jobs:
					m.process(ctx, job)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Enqueue hands a job to the worker pool. Returns an error when the queue is
// full rather than blocking the caller.
func (m *Manager) Enqueue(job LaunchJob) error {
	if job.ContainerID == "" || job.Prompt == "" {
		return fmt.Errorf("launch job requires container id and prompt")
	}
	select {
	case m.jobs <- job:
		return nil
	default:
		return fmt.Errorf("launch queue is full")
	}
}

// process runs one job to completion. It never lets an error escape: the
// caller already returned, so the only observable outcome is the store row.
func (m *Manager) process(ctx context.Context, job LaunchJob) {
	if rowID, err := m.launch(ctx, job); err != nil {
		log.Error("launch failed", "container", job.ContainerID, "error", err)
		m.recordFailure(rowID, job.ContainerID, err)
	}
}

// launch returns the row's current id alongside any error: the row is renamed
// mid-flight, and a failure after the rename must be recorded against the new
// id, not the stale correlation id.
func (m *Manager) launch(ctx context.Context, job LaunchJob) (string, error) {
	rowID := job.ContainerID
	unitName := generateUnitName()
	webhookURL := job.WebhookURL
	if webhookURL == "" {
		webhookURL = m.cfg.WebhookURL
	}

	if m.cfg.RepoChecker != nil && job.RepoURL != "" {
		if err := m.cfg.RepoChecker.Check(ctx, job.RepoURL); err != nil {
			return rowID, fmt.Errorf("repository validation failed: %w", err)
		}
	}

	log.Info("provisioning unit", "container", job.ContainerID, "name", unitName)
	u, err := m.cfg.Provisioner.Provision(ctx, ProvisionSpec{
		Name: unitName,
		Env:  buildUnitEnv(job, unitName, webhookURL, m.cfg.WebhookSecret),
	})
	if err != nil {
		return rowID, fmt.Errorf("provisioning failed: %w", err)
	}

	uc := m.cfg.newUnitClient(u.BaseURL, u.InstanceID)
	if err := m.awaitReady(ctx, uc); err != nil {
		// Best-effort cleanup; its own failure must not mask the readiness
		// error, but it is surfaced on the log channel rather than dropped.
		if derr := m.cfg.Provisioner.Destroy(context.WithoutCancel(ctx), u.ID); derr != nil {
			log.Warn("cleanup of unready unit failed", "unit", u.ID, "error", derr)
		}
		return rowID, err
	}

	now := time.Now().UTC()
	if err := m.cfg.Store.RenameContainer(ctx, rowID, u.Name); err != nil {
		return rowID, fmt.Errorf("failed to record unit name: %w", err)
	}
	rowID = u.Name
	if err := m.cfg.Store.SetContainerStatus(ctx, rowID, store.StatusRunning); err != nil {
		return rowID, fmt.Errorf("failed to mark container running: %w", err)
	}
	if err := m.cfg.Store.TouchContainer(ctx, rowID, now); err != nil {
		log.Warn("failed to stamp last event", "unit", u.Name, "error", err)
	}

	// Exactly one forward per launch, pinned to this instance.
	if err := uc.SendTask(ctx, job.Prompt); err != nil {
		return rowID, fmt.Errorf("failed to forward task: %w", err)
	}

	log.Info("unit running", "container", job.ContainerID, "unit", u.Name)
	return rowID, nil
}

// awaitReady polls the unit's own status endpoint until it answers or the
// readiness deadline passes. This is deliberately independent of the
// backend's "started" signal.
func (m *Manager) awaitReady(ctx context.Context, uc unitClient) error {
	deadline := time.Now().Add(m.cfg.ReadyDeadline)
	for {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ReadyInterval)
		err := uc.Ready(probeCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("unit not reachable within %s: %w", m.cfg.ReadyDeadline, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.ReadyInterval):
		}
	}
}

// recordFailure leaves a terminal row behind: status failed, with the
// truncated error text standing in for the display name. rowID is the row's
// current id, which differs from the correlation id once the launch renamed
// it; the correlation id is kept as a suffix so failed rows stay unique and
// traceable.
func (m *Manager) recordFailure(rowID, correlationID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := truncate(cause.Error(), maxErrorLen)
	failedName := fmt.Sprintf("%s (%s)", msg, correlationID)

	if err := m.cfg.Store.RenameContainer(ctx, rowID, failedName); err != nil {
		log.Warn("failed to rename failed container", "container", rowID, "error", err)
		failedName = rowID
	}
	if err := m.cfg.Store.SetContainerStatus(ctx, failedName, store.StatusFailed); err != nil {
		log.Error("failed to record container failure", "container", correlationID, "error", err)
	}
	if err := m.cfg.Store.TouchContainer(ctx, failedName, time.Now().UTC()); err != nil {
		log.Warn("failed to stamp failed container", "container", correlationID, "error", err)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
