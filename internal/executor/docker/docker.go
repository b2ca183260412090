// Package docker implements executor.Executor with throwaway Docker containers.
//
// Every run gets a fresh container from a pre-warmed Pool. The code is streamed
// to `python -` over the exec's stdin, output is demultiplexed with stdcopy, and
// the container is force-removed afterwards whatever happened. Removing the
// container is also how a runaway program gets killed after a timeout.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/ai-code-relay/internal/apperror"
	"github.com/sakif/ai-code-relay/internal/executor"
)

var _ executor.Executor = (*Executor)(nil)

// Executor implements the executor.Executor interface using Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

// New connects to the Docker daemon, pulls the image if needed and starts the pool.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: daemon unreachable: %w", err)
	}

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: pulling image: %w", err)
	}
	// Draining the progress stream blocks until the pull is complete.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()
	logger.Info("docker image is ready", slog.String("image", cfg.Image))

	e := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   NewPool(cli, cfg, logger),
	}
	e.pool.Start()

	return e, nil
}

// Name implements executor.Executor.
func (e *Executor) Name() string { return "docker" }

// Close shuts down the pool and the docker client.
func (e *Executor) Close() error {
	e.pool.Stop()
	return e.cli.Close()
}

// Execute runs the provided Python code in a sandboxed container.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	// The deadline covers waiting for a pooled container too: a drained pool
	// under load must not hold the caller longer than a run would.
	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	containerID, err := e.pool.GetContainer(runCtx)
	if err != nil {
		if apperror.IsDeadline(err) {
			return nil, apperror.Timeout("Execution", e.config.Timeout)
		}
		return nil, apperror.Transport(fmt.Sprintf("Request failed: no sandbox available: %s", err.Error()))
	}
	// One run per container. Force removal kills anything still running.
	defer e.pool.removeContainer(containerID)

	execResp, err := e.cli.ContainerExecCreate(runCtx, containerID, container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"python", "-"},
		WorkingDir:   "/tmp",
	})
	if err != nil {
		return nil, e.execError("creating exec", err)
	}

	attachResp, err := e.cli.ContainerExecAttach(runCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, e.execError("attaching to exec", err)
	}
	defer attachResp.Close()

	// Feed the program on stdin, then signal EOF so the interpreter starts running it.
	go func() {
		_, _ = io.Copy(attachResp.Conn, strings.NewReader(req.Code))
		_ = attachResp.CloseWrite()
	}()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		done <- err
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		e.logger.Warn("execution hit wall-clock limit",
			slog.String("container", shortID(containerID)),
			slog.Duration("limit", e.config.Timeout),
		)
		if ctx.Err() != nil {
			// The caller went away; that is not our timeout.
			return nil, apperror.Transport(fmt.Sprintf("Request failed: %s", ctx.Err().Error()))
		}
		return nil, apperror.Timeout("Execution", e.config.Timeout)
	}

	res := &executor.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	inspectCtx, inspectCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer inspectCancel()
	if inspect, err := e.cli.ContainerExecInspect(inspectCtx, execResp.ID); err == nil {
		res.ExitCode = inspect.ExitCode
	}

	return res, nil
}

func (e *Executor) execError(op string, err error) error {
	if apperror.IsDeadline(err) {
		return apperror.Timeout("Execution", e.config.Timeout)
	}
	return apperror.Transport(fmt.Sprintf("Request failed: %s: %s", op, err.Error()))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
