package assistant_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ai-code-relay/internal/apperror"
	"github.com/sakif/ai-code-relay/internal/assistant"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestClient(t *testing.T, h http.HandlerFunc) *assistant.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := assistant.DefaultConfig()
	cfg.URL = srv.URL + "/api/v1/chat/completions"
	cfg.APIKey = "sk-test"
	cfg.Timeout = 2 * time.Second

	c, err := assistant.New(cfg, discard)
	require.NoError(t, err)
	return c
}

func TestNew_MissingAPIKey(t *testing.T) {
	for _, key := range []string{"", "   "} {
		cfg := assistant.DefaultConfig()
		cfg.APIKey = key

		c, err := assistant.New(cfg, discard)
		assert.Nil(t, c)
		assert.ErrorIs(t, err, assistant.ErrMissingAPIKey)
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := assistant.BuildMessages("why does this fail?", "print(x)")
	require.Len(t, msgs, 2)

	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, assistant.SystemPrompt, msgs[0].Content)

	assert.Equal(t, "user", msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "```python\nprint(x)\n```")
	assert.Contains(t, msgs[1].Content, "Now respond to the user's query:\nwhy does this fail?")
}

func TestAsk_Success(t *testing.T) {
	var captured struct {
		Model    string              `json:"model"`
		Messages []assistant.Message `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "https://ai-code-editor.vercel.app", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		io.WriteString(w, `{
			"id": "gen-1",
			"model": "openchat/openchat-3.5-1210",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Use a loop."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 3}
		}`)
	})

	reply, err := c.Ask(t.Context(), "how do I repeat?", "")
	require.NoError(t, err)
	assert.Equal(t, "Use a loop.", reply.Text)
	assert.Equal(t, "openchat/openchat-3.5-1210", reply.Model)
	assert.Equal(t, 42, reply.PromptTokens)
	assert.Equal(t, 3, reply.CompletionTokens)

	assert.Equal(t, "openchat/openchat-3.5-1210", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[1].Content, "how do I repeat?")
}

func TestAsk_UpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"No auth credentials found","code":401}}`)
	})

	reply, err := c.Ask(t.Context(), "hi", "")
	assert.Nil(t, reply)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
	assert.Contains(t, err.Error(), "Error:")
	assert.Contains(t, err.Error(), "No auth credentials found")
}

func TestAsk_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"gen-2","choices":[]}`)
	})

	_, err := c.Ask(t.Context(), "hi", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))
}

func TestAsk_EmptyReply(t *testing.T) {
	for _, content := range []string{"", "  \n"} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "gen-3",
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
			})
		})

		reply, err := c.Ask(t.Context(), "hi", "")
		assert.Nil(t, reply)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperror.ErrUpstream))
		assert.Contains(t, err.Error(), "empty reply")
	}
}

func TestAsk_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := assistant.DefaultConfig()
	cfg.URL = srv.URL
	cfg.APIKey = "sk-test"
	cfg.Timeout = 100 * time.Millisecond
	c, err := assistant.New(cfg, discard)
	require.NoError(t, err)

	_, err = c.Ask(t.Context(), "hi", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrTimeout))
}

func TestAsk_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := assistant.DefaultConfig()
	cfg.URL = url
	cfg.APIKey = "sk-test"
	c, err := assistant.New(cfg, discard)
	require.NoError(t, err)

	_, err = c.Ask(t.Context(), "hi", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrTransport))
	assert.Contains(t, err.Error(), "Exception:")
}
