// Package piston implements executor.Executor on top of the Piston code
// execution API (https://github.com/engineer-man/piston).
//
// REQUEST SHAPE:
// Piston runs a set of files in a named language/version:
//
//	POST {base}/execute
//	{"language":"python3","version":"*","files":[{"name":"main.py","content":"print(1)"}]}
//
// and answers with a "run" stage (and a "compile" stage for compiled languages)
// whose "output" field is stdout and stderr interleaved in arrival order.
package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/ai-code-relay/internal/apperror"
	"github.com/sakif/ai-code-relay/internal/executor"
)

// noOutputMessage is reported in stderr when a run produced no output at all.
const noOutputMessage = "Error running code."

// maxErrorBody caps how much of an upstream error body we copy into a message.
const maxErrorBody = 4096

var _ executor.Executor = (*Executor)(nil)

// Config holds the configuration for the Piston backend.
type Config struct {
	// BaseURL is the API root; "/execute" is appended to it.
	BaseURL string
	// Language and Version select the Piston runtime. "*" means latest.
	Language string
	Version  string
	// FileName is the name the submitted code is stored under.
	FileName string
	// Timeout bounds the whole HTTP round trip.
	Timeout time.Duration
}

// DefaultConfig targets the public Piston instance with a Python 3 runtime.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://emkc.org/api/v2/piston",
		Language: "python3",
		Version:  "*",
		FileName: "main.py",
		Timeout:  10 * time.Second,
	}
}

type file struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type executeRequest struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Files    []file `json:"files"`
}

type stage struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Output string  `json:"output"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

type executeResponse struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Run      stage  `json:"run"`
	Compile  *stage `json:"compile,omitempty"`
}

// Executor forwards code to a Piston server.
type Executor struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// New creates a Piston Executor. The http.Client carries no timeout of its own;
// every call gets a context deadline from Config.Timeout instead.
func New(cfg Config, logger *slog.Logger) *Executor {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Executor{
		httpClient: &http.Client{},
		config:     cfg,
		logger:     logger,
	}
}

// Name implements executor.Executor.
func (e *Executor) Name() string { return "piston" }

// Close releases idle upstream connections.
func (e *Executor) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// Execute submits the code to Piston and maps its answer to stdout/stderr.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(executeRequest{
		Language: e.config.Language,
		Version:  e.config.Version,
		Files:    []file{{Name: e.config.FileName, Content: req.Code}},
	})
	if err != nil {
		return nil, fmt.Errorf("piston: marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, apperror.Transport(fmt.Sprintf("Request failed: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		if apperror.IsDeadline(err) {
			return nil, apperror.Timeout("Execution", e.config.Timeout)
		}
		return nil, apperror.Transport(fmt.Sprintf("Request failed: %s", err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e.logger.Warn("piston rejected execution",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(text)),
		)
		return nil, apperror.Upstream(resp.StatusCode, fmt.Sprintf("Piston Error: %s", strings.TrimSpace(string(text))))
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if apperror.IsDeadline(err) {
			return nil, apperror.Timeout("Execution", e.config.Timeout)
		}
		return nil, apperror.Transport(fmt.Sprintf("Request failed: decoding response: %s", err.Error()))
	}

	result := toResult(out)
	result.Duration = time.Since(start)
	return result, nil
}

// toResult maps a Piston answer onto stdout/stderr.
//
// The combined "output" stream becomes stdout. stderr stays empty whenever
// there was output; otherwise it explains why nothing came back.
func toResult(out executeResponse) *executor.ExecutionResult {
	st := out.Run
	// A failed compile stage means the run stage never produced anything useful.
	if out.Compile != nil && out.Compile.Code != nil && *out.Compile.Code != 0 {
		st = *out.Compile
	}

	res := &executor.ExecutionResult{Stdout: st.Output}
	if st.Code != nil {
		res.ExitCode = *st.Code
	}
	if st.Output == "" {
		res.Stderr = st.Stderr
		if res.Stderr == "" {
			res.Stderr = noOutputMessage
		}
	}
	return res
}
