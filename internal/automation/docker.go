package automation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChromePool provisions one browserless/chrome container per session and
// hands its DevTools websocket URL to the rod driver.
type ChromePool struct {
	client *client.Client
	image  string
	log    *zap.Logger
}

// NewChromePool creates a pool over the local Docker daemon.
func NewChromePool(chromeImage string, log *zap.Logger) (*ChromePool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &ChromePool{client: cli, image: chromeImage, log: log}, nil
}

// Launch starts a container and blocks until its DevTools endpoint answers.
func (p *ChromePool) Launch(ctx context.Context) (string, func(), error) {
	id := uuid.New().String()

	containerConfig := &container.Config{
		Image: p.image,
		Labels: map[string]string{
			"session-id": id,
			"managed-by": "courtscout",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
		},
		ExposedPorts: nat.PortSet{
			"3000/tcp": struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"3000/tcp": []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: "0"},
			},
		},
	}

	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil,
		fmt.Sprintf("courtscout-%s", id[:8]))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create container: %w", err)
	}

	cleanup := func() { p.stop(resp.ID) }

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports["3000/tcp"]
	if len(bindings) == 0 {
		cleanup()
		return "", nil, fmt.Errorf("container exposed no devtools port")
	}
	port := bindings[0].HostPort

	if err := p.waitForDevtools(ctx, port); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	p.log.Debug("chrome container ready",
		zap.String("container", resp.ID[:12]),
		zap.String("port", port))

	return fmt.Sprintf("ws://localhost:%s", port), cleanup, nil
}

func (p *ChromePool) stop(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		p.log.Warn("failed to stop chrome container",
			zap.String("container", containerID[:12]), zap.Error(err))
		return
	}
	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		p.log.Warn("failed to remove chrome container",
			zap.String("container", containerID[:12]), zap.Error(err))
	}
}

// EnsureImage pulls the Chrome image if it is not present locally.
func (p *ChromePool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.image {
				return nil
			}
		}
	}

	reader, err := p.client.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the Docker client.
func (p *ChromePool) Close() error {
	return p.client.Close()
}

// waitForDevtools polls /json/version until the endpoint answers.
func (p *ChromePool) waitForDevtools(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/json/version", port)
	const maxRetries = 20

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("devtools endpoint not ready after %d retries", maxRetries)
}
