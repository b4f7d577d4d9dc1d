package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/replayio/overseer/pkg/machines"
	"github.com/replayio/overseer/pkg/unit"
)

// MachineProvisioner provisions units through the remote Machine API.
type MachineProvisioner struct {
	client        *machines.Client
	image         string
	appHost       string // public hostname of the app fronting the units
	startDeadline time.Duration
}

// MachineProvisionerConfig configures the remote backend.
type MachineProvisionerConfig struct {
	Client        *machines.Client
	Image         string
	AppHost       string
	StartDeadline time.Duration // default 2m
}

// NewMachineProvisioner creates the production provisioning backend.
func NewMachineProvisioner(cfg MachineProvisionerConfig) (*MachineProvisioner, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("machine client is required")
	}
	if cfg.Image == "" {
		return nil, fmt.Errorf("unit image is required")
	}
	if cfg.AppHost == "" {
		return nil, fmt.Errorf("app host is required")
	}
	deadline := cfg.StartDeadline
	if deadline <= 0 {
		deadline = 2 * time.Minute
	}
	return &MachineProvisioner{
		client:        cfg.Client,
		image:         cfg.Image,
		appHost:       cfg.AppHost,
		startDeadline: deadline,
	}, nil
}

// Provision creates one machine and waits for it to start. The returned unit
// is addressed through the shared app hostname, pinned to the new instance so
// a load balancer cannot route to a different machine.
func (p *MachineProvisioner) Provision(ctx context.Context, spec ProvisionSpec) (*Unit, error) {
	m, err := p.client.CreateMachine(ctx, machines.CreateRequest{
		Name:  spec.Name,
		Image: p.image,
		Env:   spec.Env,
	})
	if err != nil {
		return nil, err
	}

	if err := p.client.WaitStarted(ctx, m.ID, p.startDeadline); err != nil {
		return nil, err
	}

	name := m.Name
	if name == "" {
		name = spec.Name
	}
	return &Unit{
		ID:         m.ID,
		Name:       name,
		BaseURL:    "https://" + p.appHost,
		InstanceID: m.ID,
	}, nil
}

// Destroy force-deletes the machine.
func (p *MachineProvisioner) Destroy(ctx context.Context, id string) error {
	return p.client.DestroyMachine(ctx, id)
}

func defaultUnitClient(baseURL, instanceID string) unitClient {
	return unit.NewClient(baseURL, instanceID)
}
