// Package service contains the relay's business logic.
//
// LAYERS:
//
//	Handler (HTTP)   → decodes JSON, picks the response shape
//	Service          → validates input, calls a backend, records the outcome
//	Backends / repo  → executor.Executor, the chat client, the call log
//
// The service knows nothing about HTTP. It returns apperror kinds and lets
// the handler decide how each one is shown to the caller.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/ai-code-relay/internal/apperror"
	"github.com/sakif/ai-code-relay/internal/assistant"
	"github.com/sakif/ai-code-relay/internal/executor"
	"github.com/sakif/ai-code-relay/internal/model"
	"github.com/sakif/ai-code-relay/internal/observability"
	"github.com/sakif/ai-code-relay/internal/repository"
)

const (
	MaxCodeLength    = 100000 // ~100KB of code
	MaxPromptLength  = 20000
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Asker is the part of the chat client the service needs.
type Asker interface {
	Ask(ctx context.Context, prompt, userCode string) (*assistant.Reply, error)
	Model() string
}

// RelayService runs code and asks the assistant, keeping an audit trail of both.
type RelayService struct {
	exec    executor.Executor
	asker   Asker
	calls   repository.CallRepository
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRelayService wires the service. calls may be nil to disable the audit log.
func NewRelayService(exec executor.Executor, asker Asker, calls repository.CallRepository, metrics *observability.Metrics, logger *slog.Logger) *RelayService {
	return &RelayService{
		exec:    exec,
		asker:   asker,
		calls:   calls,
		metrics: metrics,
		logger:  logger,
	}
}

// ExecutorName reports which execution backend is configured.
func (s *RelayService) ExecutorName() string {
	return s.exec.Name()
}

// Run validates the code and hands it to the execution backend.
func (s *RelayService) Run(ctx context.Context, code string) (*executor.ExecutionResult, error) {
	backend := s.exec.Name()

	if strings.TrimSpace(code) == "" {
		err := apperror.ValidationFailed("code", "code cannot be empty")
		s.record(ctx, model.KindRun, backend, err, 0)
		return nil, err
	}
	if len(code) > MaxCodeLength {
		err := apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
		s.record(ctx, model.KindRun, backend, err, 0)
		return nil, err
	}

	done := s.track(model.KindRun)
	start := time.Now()
	res, err := s.exec.Execute(ctx, executor.ExecutionRequest{Code: code})
	elapsed := time.Since(start)
	done()

	s.observe(model.KindRun, backend, elapsed)
	s.record(ctx, model.KindRun, backend, err, elapsed)

	if err != nil {
		s.logger.Warn("execution failed",
			slog.String("backend", backend),
			slog.String("outcome", apperror.Kind(err)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("running code: %w", err)
	}

	s.logger.Debug("execution finished",
		slog.String("backend", backend),
		slog.Int("exitCode", res.ExitCode),
		slog.Duration("duration", elapsed),
	)
	return res, nil
}

// Ask validates the prompt and forwards it with the code context.
// An empty userCode is fine; the assistant just sees an empty code block.
func (s *RelayService) Ask(ctx context.Context, prompt, userCode string) (string, error) {
	modelName := s.asker.Model()

	if strings.TrimSpace(prompt) == "" {
		err := apperror.ValidationFailed("prompt", "prompt cannot be empty")
		s.record(ctx, model.KindAsk, modelName, err, 0)
		return "", err
	}
	if len(prompt) > MaxPromptLength {
		err := apperror.ValidationFailed("prompt",
			fmt.Sprintf("prompt must be %d characters or less", MaxPromptLength))
		s.record(ctx, model.KindAsk, modelName, err, 0)
		return "", err
	}
	if len(userCode) > MaxCodeLength {
		err := apperror.ValidationFailed("user_code",
			fmt.Sprintf("user_code must be %d characters or less", MaxCodeLength))
		s.record(ctx, model.KindAsk, modelName, err, 0)
		return "", err
	}

	done := s.track(model.KindAsk)
	start := time.Now()
	reply, err := s.asker.Ask(ctx, prompt, userCode)
	elapsed := time.Since(start)
	done()

	s.observe(model.KindAsk, modelName, elapsed)
	s.record(ctx, model.KindAsk, modelName, err, elapsed)

	if err != nil {
		s.logger.Warn("assistant request failed",
			slog.String("model", modelName),
			slog.String("outcome", apperror.Kind(err)),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("asking assistant: %w", err)
	}

	if s.metrics != nil {
		s.metrics.AssistantTokensTotal.WithLabelValues(reply.Model, "input").Add(float64(reply.PromptTokens))
		s.metrics.AssistantTokensTotal.WithLabelValues(reply.Model, "output").Add(float64(reply.CompletionTokens))
	}
	return reply.Text, nil
}

// ListCalls returns recent audit records, newest first.
// limit is clamped to 1..MaxListLimit; kind may be "", "run" or "ask".
func (s *RelayService) ListCalls(ctx context.Context, limit int, kind string) ([]model.CallRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	k := model.CallKind(kind)
	switch k {
	case "", model.KindRun, model.KindAsk:
	default:
		return nil, apperror.ValidationFailed("kind", `kind must be "run" or "ask"`)
	}

	if s.calls == nil {
		return []model.CallRecord{}, nil
	}

	calls, err := s.calls.ListRecent(ctx, repository.ListOptions{Limit: limit, Kind: k})
	if err != nil {
		return nil, fmt.Errorf("listing calls: %w", err)
	}
	return calls, nil
}

// track bumps the in-flight gauge and returns the matching decrement.
func (s *RelayService) track(kind model.CallKind) func() {
	if s.metrics == nil {
		return func() {}
	}
	g := s.metrics.InFlight.WithLabelValues(string(kind))
	g.Inc()
	return g.Dec
}

func (s *RelayService) observe(kind model.CallKind, backend string, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.UpstreamLatency.WithLabelValues(string(kind), backend).Observe(elapsed.Seconds())
}

// record writes the call's outcome to metrics and the audit log.
// A failed audit write is logged and otherwise ignored: it must never fail the call.
func (s *RelayService) record(ctx context.Context, kind model.CallKind, backend string, callErr error, elapsed time.Duration) {
	outcome := apperror.Kind(callErr)

	if s.metrics != nil {
		s.metrics.UpstreamCallsTotal.WithLabelValues(string(kind), backend, outcome).Inc()
	}
	if s.calls == nil {
		return
	}

	// The caller may already be gone; the audit write still gets its own short budget.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	rec := &model.CallRecord{
		Kind:       kind,
		Backend:    backend,
		Outcome:    outcome,
		DurationMS: elapsed.Milliseconds(),
	}
	if err := s.calls.Record(writeCtx, rec); err != nil {
		s.logger.Error("failed to record call",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}
