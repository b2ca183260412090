package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Pool keeps a small buffer of idle, already-started sandbox containers.
//
// The buffered channel is the whole synchronisation story: the manager
// goroutine blocks sending into it while the pool is full, and callers block
// receiving from it while it is empty. Containers are single-use, so a
// receive is a hand-off of ownership.
type Pool struct {
	cli        *client.Client
	config     Config
	logger     *slog.Logger
	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewPool creates a pool; call Start to begin filling it.
func NewPool(cli *client.Client, cfg Config, logger *slog.Logger) *Pool {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	return &Pool{
		cli:        cli,
		config:     cfg,
		logger:     logger,
		containers: make(chan string, size),
		done:       make(chan struct{}),
	}
}

// Start launches the background manager. Safe to call more than once.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting sandbox pool", slog.Int("size", cap(p.containers)))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop shuts down the manager and removes every idle container.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down sandbox pool")
		close(p.done)
		p.wg.Wait()

		for {
			select {
			case id := <-p.containers:
				p.removeContainer(id)
			default:
				return
			}
		}
	})
}

// GetContainer hands out an idle container, blocking until one is ready
// or ctx is done. The caller owns the container and must remove it.
func (p *Pool) GetContainer(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-p.done:
		return "", fmt.Errorf("docker: pool is shut down")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// manager keeps the pool topped up until Stop is called.
func (p *Pool) manager() {
	defer p.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-p.done:
			return
		default:
		}

		id, err := p.createContainer()
		if err != nil {
			p.logger.Error("failed to create sandbox container", slog.String("error", err.Error()))
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, 30*time.Second)
			case <-p.done:
				return
			}
			continue
		}
		backoff = time.Second

		select {
		case p.containers <- id:
		case <-p.done:
			p.removeContainer(id)
			return
		}
	}
}

// createContainer starts an idle, locked-down container running `sleep infinity`.
func (p *Pool) createContainer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pids := p.config.PidsLimit
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    p.config.MemoryLimit,
			NanoCPUs:  int64(p.config.CPULimit * 1e9),
			PidsLimit: &pids,
		},
		ReadonlyRootfs: true,
		// The root filesystem is read-only; programs get a small scratch /tmp.
		Tmpfs:       map[string]string{"/tmp": "rw,noexec,nosuid,size=16m"},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:     p.config.Image,
		Cmd:       []string{"sleep", "infinity"},
		User:      "nobody",
		OpenStdin: true,
		Labels:    map[string]string{"ai-code-relay.sandbox": "true"},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("docker: ContainerCreate: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return "", fmt.Errorf("docker: ContainerStart: %w", err)
	}

	return resp.ID, nil
}

// removeContainer force removes a container by ID.
func (p *Pool) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Error("failed to remove sandbox container",
			slog.String("container", shortID(id)),
			slog.String("error", err.Error()),
		)
	}
}
