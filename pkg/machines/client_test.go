package machines

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{Token: "t"}); err == nil {
		t.Fatal("expected error for missing app")
	}
	if _, err := NewClient(Config{App: "a"}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestCreateMachine(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/apps/build-agents/machines" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "m-1234", "name": "agent-bold-otter"})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, App: "build-agents", Token: "secret-token"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	m, err := c.CreateMachine(context.Background(), CreateRequest{
		Name:  "agent-bold-otter",
		Image: "registry.example.com/build-agent:latest",
		Env:   map[string]string{"WEBHOOK_URL": "https://overseer.example.com/api/webhook"},
	})
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}
	if m.ID != "m-1234" {
		t.Fatalf("expected machine id m-1234, got %q", m.ID)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}

	cfg, ok := gotBody["config"].(map[string]interface{})
	if !ok {
		t.Fatalf("request missing config: %v", gotBody)
	}
	services, ok := cfg["services"].([]interface{})
	if !ok || len(services) != 1 {
		t.Fatalf("expected exactly one service, got %v", cfg["services"])
	}
	svc := services[0].(map[string]interface{})
	if svc["autostart"] != false || svc["autostop"] != false {
		t.Fatalf("autostart/autostop must be disabled: %v", svc)
	}
}

func TestCreateMachineNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"image not found"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, App: "a", Token: "t"})
	_, err := c.CreateMachine(context.Background(), CreateRequest{Name: "n", Image: "bad"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "image not found") {
		t.Fatalf("error should embed status and body: %v", err)
	}
}

func TestWaitStartedEventuallySucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusRequestTimeout)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, App: "a", Token: "t"})
	if err := c.WaitStarted(context.Background(), "m-1", time.Minute); err != nil {
		t.Fatalf("WaitStarted failed: %v", err)
	}
	if calls < 3 {
		t.Fatalf("expected retries, got %d calls", calls)
	}
}

func TestWaitStartedDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestTimeout)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, App: "a", Token: "t"})
	start := time.Now()
	err := c.WaitStarted(context.Background(), "m-1", 500*time.Millisecond)
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("WaitStarted did not respect deadline")
	}
}

func TestWaitStartedFailsFastOnNonRetryable(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"machine not found"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, App: "a", Token: "t"})
	start := time.Now()
	err := c.WaitStarted(context.Background(), "m-gone", time.Minute)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error should embed the status: %v", err)
	}
	if calls != 1 {
		t.Fatalf("404 must not be retried, got %d calls", calls)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("non-retryable error should fail immediately")
	}
}

func TestDestroyMachineForce(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, App: "a", Token: "t"})
	if err := c.DestroyMachine(context.Background(), "m-9"); err != nil {
		t.Fatalf("DestroyMachine failed: %v", err)
	}
	if gotURL != "/v1/apps/a/machines/m-9?force=true" {
		t.Fatalf("unexpected delete URL: %s", gotURL)
	}
}
