package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/replayio/overseer/pkg/store"
)

type fakeProvisioner struct {
	mu        sync.Mutex
	provision func(spec ProvisionSpec) (*Unit, error)
	destroyed []string
}

func (f *fakeProvisioner) Provision(_ context.Context, spec ProvisionSpec) (*Unit, error) {
	return f.provision(spec)
}

func (f *fakeProvisioner) Destroy(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, id)
	return nil
}

type fakeUnit struct {
	mu        sync.Mutex
	readyErr  error
	sendErr   error
	readyHits int
	tasks     []string
}

func (f *fakeUnit) Ready(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyHits++
	return f.readyErr
}

func (f *fakeUnit) SendTask(_ context.Context, prompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, prompt)
	return f.sendErr
}

func newTestManager(t *testing.T, prov Provisioner, fu *fakeUnit) (*Manager, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	m, err := NewManager(Config{
		Store:         s,
		Provisioner:   prov,
		WebhookURL:    "https://overseer.example.com/api/webhook",
		ReadyInterval: 10 * time.Millisecond,
		ReadyDeadline: 100 * time.Millisecond,
		newUnitClient: func(baseURL, instanceID string) unitClient { return fu },
	})
	if err != nil {
		t.Fatal(err)
	}
	return m, s
}

func pendingRow(t *testing.T, s store.Store, id, prompt string) {
	t.Helper()
	now := time.Now().UTC()
	if err := s.CreateContainer(context.Background(), &store.Container{
		ID: id, Status: store.StatusPending, Prompt: prompt, CreatedAt: now, LastEventAt: now,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestProcessSuccess(t *testing.T) {
	fu := &fakeUnit{}
	prov := &fakeProvisioner{provision: func(spec ProvisionSpec) (*Unit, error) {
		if spec.Env["CONTAINER_NAME"] != spec.Name {
			t.Errorf("env should carry the unit name, got %v", spec.Env)
		}
		if spec.Env["WEBHOOK_URL"] == "" {
			t.Error("env should carry the webhook URL")
		}
		return &Unit{ID: "m-1", Name: "agent-real-name", BaseURL: "https://units.example.com", InstanceID: "m-1"}, nil
	}}
	m, s := newTestManager(t, prov, fu)
	pendingRow(t, s, "corr-1", "build it")

	m.process(context.Background(), LaunchJob{ContainerID: "corr-1", Prompt: "build it", RepoURL: "https://example.com/r.git"})

	// Correlation id replaced with the unit's real name
	c, err := s.GetContainer(context.Background(), "agent-real-name")
	if err != nil {
		t.Fatalf("renamed row missing: %v", err)
	}
	if c.Status != store.StatusRunning {
		t.Errorf("expected running, got %s", c.Status)
	}
	if len(fu.tasks) != 1 || fu.tasks[0] != "build it" {
		t.Errorf("expected exactly one forwarded task, got %v", fu.tasks)
	}

	list, _ := s.ListContainers(context.Background())
	if len(list) != 1 {
		t.Errorf("expected exactly one row, got %d", len(list))
	}
}

func TestProcessProvisioningFailure(t *testing.T) {
	fu := &fakeUnit{}
	prov := &fakeProvisioner{provision: func(ProvisionSpec) (*Unit, error) {
		return nil, fmt.Errorf("machine API returned 422: out of capacity")
	}}
	m, s := newTestManager(t, prov, fu)
	pendingRow(t, s, "corr-2", "p")

	m.process(context.Background(), LaunchJob{ContainerID: "corr-2", Prompt: "p"})

	list, _ := s.ListContainers(context.Background())
	if len(list) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(list))
	}
	row := list[0]
	if row.Status != store.StatusFailed {
		t.Errorf("expected failed, got %s", row.Status)
	}
	if !strings.Contains(row.ID, "out of capacity") {
		t.Errorf("error text should stand in for the name, got %q", row.ID)
	}
	if !strings.Contains(row.ID, "corr-2") {
		t.Errorf("correlation id should remain traceable, got %q", row.ID)
	}
}

func TestProcessReadinessTimeoutCleansUp(t *testing.T) {
	fu := &fakeUnit{readyErr: fmt.Errorf("connection refused")}
	prov := &fakeProvisioner{provision: func(spec ProvisionSpec) (*Unit, error) {
		return &Unit{ID: "m-9", Name: spec.Name, BaseURL: "https://units.example.com"}, nil
	}}
	m, s := newTestManager(t, prov, fu)
	pendingRow(t, s, "corr-3", "p")

	start := time.Now()
	m.process(context.Background(), LaunchJob{ContainerID: "corr-3", Prompt: "p"})

	if time.Since(start) > 5*time.Second {
		t.Fatal("readiness polling did not respect the deadline")
	}
	if fu.readyHits < 2 {
		t.Errorf("expected repeated readiness probes, got %d", fu.readyHits)
	}
	if len(prov.destroyed) != 1 || prov.destroyed[0] != "m-9" {
		t.Errorf("unready unit should be destroyed, got %v", prov.destroyed)
	}

	list, _ := s.ListContainers(context.Background())
	if len(list) != 1 || list[0].Status != store.StatusFailed {
		t.Fatalf("expected one failed row, got %v", list)
	}
	if len(fu.tasks) != 0 {
		t.Errorf("no task should be forwarded to an unready unit")
	}
}

func TestProcessTaskForwardingFailure(t *testing.T) {
	fu := &fakeUnit{sendErr: fmt.Errorf("unit message endpoint returned 503")}
	prov := &fakeProvisioner{provision: func(ProvisionSpec) (*Unit, error) {
		return &Unit{ID: "m-5", Name: "agent-real-name", BaseURL: "https://units.example.com"}, nil
	}}
	m, s := newTestManager(t, prov, fu)
	pendingRow(t, s, "corr-6", "p")

	m.process(context.Background(), LaunchJob{ContainerID: "corr-6", Prompt: "p"})

	// The row was renamed before the forward failed; the failure must still
	// land on it, never on the stale correlation id.
	list, _ := s.ListContainers(context.Background())
	if len(list) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(list))
	}
	row := list[0]
	if row.Status != store.StatusFailed {
		t.Errorf("expected failed, got %s", row.Status)
	}
	if !strings.Contains(row.ID, "503") {
		t.Errorf("error text should stand in for the name, got %q", row.ID)
	}
	if !strings.Contains(row.ID, "corr-6") {
		t.Errorf("correlation id should remain traceable, got %q", row.ID)
	}
}

func TestProcessRepoCheckFailure(t *testing.T) {
	fu := &fakeUnit{}
	provisioned := false
	prov := &fakeProvisioner{provision: func(ProvisionSpec) (*Unit, error) {
		provisioned = true
		return &Unit{ID: "m-1", Name: "n", BaseURL: "u"}, nil
	}}
	m, s := newTestManager(t, prov, fu)
	m.cfg.RepoChecker = checkerFunc(func(context.Context, string) error {
		return fmt.Errorf("repository not found")
	})
	pendingRow(t, s, "corr-4", "p")

	m.process(context.Background(), LaunchJob{ContainerID: "corr-4", Prompt: "p", RepoURL: "https://github.com/a/b"})

	if provisioned {
		t.Error("no machine should be created when the repo check fails")
	}
	list, _ := s.ListContainers(context.Background())
	if len(list) != 1 || list[0].Status != store.StatusFailed {
		t.Fatalf("expected one failed row, got %v", list)
	}
}

type checkerFunc func(context.Context, string) error

func (f checkerFunc) Check(ctx context.Context, url string) error { return f(ctx, url) }

func TestEnqueueValidation(t *testing.T) {
	fu := &fakeUnit{}
	prov := &fakeProvisioner{provision: func(ProvisionSpec) (*Unit, error) { return nil, nil }}
	m, _ := newTestManager(t, prov, fu)

	if err := m.Enqueue(LaunchJob{Prompt: "p"}); err == nil {
		t.Error("expected error for missing container id")
	}
	if err := m.Enqueue(LaunchJob{ContainerID: "c"}); err == nil {
		t.Error("expected error for missing prompt")
	}
}

func TestWorkerConsumesQueue(t *testing.T) {
	done := make(chan string, 1)
	fu := &fakeUnit{}
	prov := &fakeProvisioner{provision: func(spec ProvisionSpec) (*Unit, error) {
		done <- spec.Name
		return &Unit{ID: "m-1", Name: spec.Name, BaseURL: "u"}, nil
	}}
	m, s := newTestManager(t, prov, fu)
	pendingRow(t, s, "corr-5", "p")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	if err := m.Enqueue(LaunchJob{ContainerID: "corr-5", Prompt: "p"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not pick up the job")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := truncate(long, maxErrorLen)
	if len([]rune(got)) != maxErrorLen+3 {
		t.Errorf("unexpected truncated length %d", len(got))
	}
	if truncate("short", maxErrorLen) != "short" {
		t.Error("short strings must pass through")
	}
}

func TestGenerateUnitName(t *testing.T) {
	name := generateUnitName()
	if !strings.HasPrefix(name, "agent-") {
		t.Errorf("unexpected name %q", name)
	}
	if name == generateUnitName() && name == generateUnitName() {
		t.Errorf("names should vary: %q", name)
	}
}
