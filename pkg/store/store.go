// Package store persists containers, webhook events, and settings. It is pure
// storage: every state transition is decided by the lifecycle manager or the
// ingestion handlers, never here.
package store

import (
	"context"
	"fmt"
	"time"
)

// ContainerStatus is the lifecycle state of a provisioned execution unit.
type ContainerStatus string

const (
	StatusPending ContainerStatus = "pending"
	StatusRunning ContainerStatus = "running"
	StatusStopped ContainerStatus = "stopped"
	StatusFailed  ContainerStatus = "failed"
)

// Valid reports whether s is one of the four permitted statuses.
func (s ContainerStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusStopped, StatusFailed:
		return true
	}
	return false
}

// Container is one provisioned remote execution unit. ID starts as the
// caller-chosen correlation id and is replaced with the unit's real name once
// the unit reports in.
type Container struct {
	ID          string          `json:"id"`
	Status      ContainerStatus `json:"status"`
	Prompt      string          `json:"prompt"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastEventAt time.Time       `json:"lastEventAt"`
}

// WebhookEvent is an append-only audit record of one callback from a running
// unit. ContainerID is a free-text correlation key, not a foreign key; units
// may identify themselves by a name they invented.
type WebhookEvent struct {
	EventID     string    `json:"eventId"`
	ContainerID string    `json:"containerId"`
	EventType   string    `json:"eventType"`
	Payload     string    `json:"payload"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// SettingDefaultPrompt is the key of the singleton default-prompt setting.
const SettingDefaultPrompt = "default_prompt"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = fmt.Errorf("store: not found")

// Store is the shared persistence surface. All writers treat rows as
// independently updatable by id; no operation needs atomicity across rows.
type Store interface {
	CreateContainer(ctx context.Context, c *Container) error
	GetContainer(ctx context.Context, id string) (*Container, error)
	// RenameContainer replaces a container's id in place, preserving the rest
	// of the row. Used when the unit's real name arrives after provisioning.
	RenameContainer(ctx context.Context, oldID, newID string) error
	SetContainerStatus(ctx context.Context, id string, status ContainerStatus) error
	// TouchContainer stamps last_event_at. Last write wins; out-of-order
	// callbacks are accepted rather than rejected.
	TouchContainer(ctx context.Context, id string, at time.Time) error
	ListContainers(ctx context.Context) ([]Container, error)

	AppendEvent(ctx context.Context, ev *WebhookEvent) error
	ListRecentEvents(ctx context.Context, limit int) ([]WebhookEvent, error)

	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error

	Close() error
}
