// Package docker is a local provisioning backend for development: instead of
// creating a remote machine it starts the agent image as a local container
// with the unit port published on an ephemeral host port. Selected when no
// Machine API token is configured.
package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/replayio/overseer/pkg/lifecycle"
)

// Runtime provisions units as local docker containers.
type Runtime struct {
	cli   *client.Client
	image string
	port  int
}

// NewRuntime creates a docker-backed provisioner for the given agent image.
func NewRuntime(agentImage string, unitPort int) (*Runtime, error) {
	if agentImage == "" {
		return nil, fmt.Errorf("agent image is required")
	}
	if unitPort <= 0 {
		unitPort = 8080
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Runtime{cli: cli, image: agentImage, port: unitPort}, nil
}

// Provision pulls the agent image if needed, creates one container with the
// assembled env, starts it, and returns its local base URL. No instance
// pinning is needed: the URL addresses the container directly.
func (r *Runtime) Provision(ctx context.Context, spec lifecycle.ProvisionSpec) (*lifecycle.Unit, error) {
	if reader, err := r.cli.ImagePull(ctx, r.image, image.PullOptions{}); err == nil {
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	unitPort := nat.Port(fmt.Sprintf("%d/tcp", r.port))
	resp, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image: r.image,
		Env:   env,
		ExposedPorts: nat.PortSet{
			unitPort: struct{}{},
		},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			unitPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
		},
	}, nil, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	// The ephemeral host port is only known after start
	inspect, err := r.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports[unitPort]
	if len(bindings) == 0 {
		return nil, fmt.Errorf("container %s has no published port for %s", resp.ID, unitPort)
	}

	return &lifecycle.Unit{
		ID:      resp.ID,
		Name:    spec.Name,
		BaseURL: fmt.Sprintf("http://127.0.0.1:%s", bindings[0].HostPort),
	}, nil
}

// Destroy force-removes the container.
func (r *Runtime) Destroy(ctx context.Context, id string) error {
	if err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}
