package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentedit/config"
	"agentedit/model"
	"agentedit/provider/testutil"
)

// chatServer records decoded chat requests and answers with handler.
type chatServer struct {
	mu       sync.Mutex
	requests []chatRequest
	headers  []http.Header
}

func (s *chatServer) record(r *http.Request) chatRequest {
	var req chatRequest
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &req)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()
	return req
}

func (s *chatServer) last() chatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{ID: "test", Type: ProviderTypeOpenAI, BaseURL: srv.URL, APIKey: "sk-test"})
	require.NoError(t, err)
	return c
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, e := range events {
		fmt.Fprintf(w, "data: %s\n\n", e)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func contentChunk(text string) string {
	data, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": text}}},
	})
	return string(data)
}

func toolChunk(index int, id, name, args string) string {
	call := map[string]any{"index": index, "function": map[string]any{"arguments": args}}
	if id != "" {
		call["id"] = id
	}
	if name != "" {
		call["function"].(map[string]any)["name"] = name
	}
	data, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"tool_calls": []any{call}}}},
	})
	return string(data)
}

func drain(t *testing.T, stream model.MessageStream) ([]string, model.ChatMessage, error) {
	t.Helper()
	defer stream.Close()
	var deltas []string
	for stream.Next() {
		deltas = append(deltas, stream.Current())
	}
	return deltas, stream.Message(), stream.Err()
}

func userRequest(text string) model.ChatRequest {
	return model.ChatRequest{
		Model:    "gpt-test",
		Messages: []model.ChatMessage{model.NewMessage(model.RoleUser, text)},
	}
}

func TestCompleteDecodesReply(t *testing.T) {
	srv := &chatServer{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		srv.record(r)
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"grep","arguments":"{\"pattern\":\"TODO\"}"}}]}}]}`)
	})

	msg, err := c.Complete(context.Background(), userRequest("find todos"))
	require.NoError(t, err)

	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Empty(t, msg.Content)
	assert.NotEmpty(t, msg.ID)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "grep", msg.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"pattern": "TODO"}, msg.ToolCalls[0].Arguments)

	req := srv.last()
	assert.False(t, req.Stream)
	assert.Equal(t, "gpt-test", req.Model)
	assert.Equal(t, "Bearer sk-test", srv.headers[0].Get("Authorization"))
}

func TestCompleteWithoutChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	})
	_, err := c.Complete(context.Background(), userRequest("hi"))
	assert.ErrorIs(t, err, ErrAPI)
}

func TestStreamContentDeltas(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		writeSSE(w, contentChunk("Once "), contentChunk("upon "), contentChunk("a time"), "[DONE]")
	})

	stream, err := c.Stream(context.Background(), userRequest("tell me a story"))
	require.NoError(t, err)

	deltas, msg, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Once ", "upon ", "a time"}, deltas)
	assert.Equal(t, "Once upon a time", msg.Content)
	assert.Empty(t, msg.ToolCalls)
}

func TestStreamReassemblesToolCallFragments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			toolChunk(0, "call_1", "read_workspace_file", `{"path`),
			toolChunk(0, "", "", `":"test.txt"}`),
			"[DONE]",
		)
	})

	stream, err := c.Stream(context.Background(), userRequest("open test.txt"))
	require.NoError(t, err)

	deltas, msg, err := drain(t, stream)
	require.NoError(t, err)
	assert.Empty(t, deltas)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "read_workspace_file", msg.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"path": "test.txt"}, msg.ToolCalls[0].Arguments)
}

func TestStreamMatchesComplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := (&chatServer{}).record(r)
		if req.Stream {
			writeSSE(w,
				contentChunk("Checking "),
				contentChunk("now."),
				toolChunk(0, "call_a", "grep", `{"pattern":`),
				toolChunk(1, "call_b", "ls", `{}`),
				toolChunk(0, "", "", `"x+"}`),
				"[DONE]",
			)
			return
		}
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Checking now.","tool_calls":[
			{"id":"call_a","type":"function","function":{"name":"grep","arguments":"{\"pattern\":\"x+\"}"}},
			{"id":"call_b","type":"function","function":{"name":"ls","arguments":"{}"}}]}}]}`)
	})

	whole, err := c.Complete(context.Background(), userRequest("search"))
	require.NoError(t, err)

	stream, err := c.Stream(context.Background(), userRequest("search"))
	require.NoError(t, err)
	_, streamed, err := drain(t, stream)
	require.NoError(t, err)

	assert.Equal(t, whole.Content, streamed.Content)
	assert.Equal(t, whole.ToolCalls, streamed.ToolCalls)
}

func TestStreamSkipsMalformedChunks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, contentChunk("Hel"), `{"choices": [`, contentChunk("lo"), "[DONE]")
	})

	stream, err := c.Stream(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	deltas, msg, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", msg.Content)
}

func TestStreamDropsUnresolvedSlots(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			toolChunk(0, "call_1", "ls", `{}`),
			toolChunk(1, "", "", `{"path":"orphan"}`),
			toolChunk(2, "call_3", "", `{}`),
		)
		// no [DONE]: the stream ends at EOF
	})

	stream, err := c.Stream(context.Background(), userRequest("list"))
	require.NoError(t, err)
	_, msg, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
}

func TestStreamMalformedArgumentsBecomeEmptyMap(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, toolChunk(0, "call_1", "read", `{"broken`), "[DONE]")
	})

	stream, err := c.Stream(context.Background(), userRequest("read"))
	require.NoError(t, err)
	_, msg, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, map[string]any{}, msg.ToolCalls[0].Arguments)
}

func TestStreamWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.Stream(context.Background(), userRequest("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStream)
	assert.Contains(t, err.Error(), "streaming not supported")
}

func newTimeoutClient(t *testing.T, timeout time.Duration, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{ID: "test", Type: ProviderTypeOpenAI, BaseURL: srv.URL, Timeout: timeout})
	require.NoError(t, err)
	return c
}

func TestStreamTimesOutWaitingForHeaders(t *testing.T) {
	c := newTimeoutClient(t, 20*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	start := time.Now()
	_, err := c.Stream(context.Background(), userRequest("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStreamTimeoutDoesNotCutOffBody(t *testing.T) {
	c := newTimeoutClient(t, 30*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, contentChunk("slow "))
		time.Sleep(80 * time.Millisecond)
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", contentChunk("answer"))
	})

	stream, err := c.Stream(context.Background(), userRequest("hi"))
	require.NoError(t, err)

	_, msg, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "slow answer", msg.Content)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    error
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`, ErrAuth, "invalid api key"},
		{"forbidden", http.StatusForbidden, `{"error":"no access"}`, ErrAuth, "no access"},
		{"rate limited", http.StatusTooManyRequests, `{"message":"slow down"}`, ErrRateLimited, "slow down"},
		{"server error", http.StatusInternalServerError, `upstream exploded`, ErrAPI, "upstream exploded"},
		{"bad request", http.StatusBadRequest, ``, ErrAPI, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			for _, stream := range []bool{false, true} {
				var err error
				if stream {
					_, err = c.Stream(context.Background(), userRequest("hi"))
				} else {
					_, err = c.Complete(context.Background(), userRequest("hi"))
				}
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.kind)

				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.status, apiErr.StatusCode)
				assert.Equal(t, tt.message, apiErr.Message)
			}
		})
	}
}

func TestNetworkFailureIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{ID: "test", Type: ProviderTypeOpenAI, BaseURL: url, APIKey: "k"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), userRequest("hi"))
	assert.ErrorIs(t, err, ErrAPI)
	assert.NotErrorIs(t, err, ErrAuth)
}

func TestRequestCarriesToolResultsAfterTheirCall(t *testing.T) {
	srv := &chatServer{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		srv.record(r)
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"done"}}]}`)
	})

	user := model.NewMessage(model.RoleUser, "fix the typo")
	assistant := model.NewMessage(model.RoleAssistant, "")
	assistant.ToolCalls = []model.ToolCall{
		{ID: "call_1", Name: "grep", Arguments: map[string]any{"pattern": "teh"}, Result: model.Success([]any{})},
		{ID: "call_2", Name: "replace", Arguments: map[string]any{"target": "teh", "replacement": "the"}, Result: model.Failure(fmt.Errorf("target not found"))},
	}

	_, err := c.Complete(context.Background(), model.ChatRequest{
		Model:    "gpt-test",
		Messages: []model.ChatMessage{user, assistant},
		Tools:    testutil.TestTools(),
	})
	require.NoError(t, err)

	req := srv.last()
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "user", req.Messages[0].Role)

	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Nil(t, req.Messages[1].Content)
	require.Len(t, req.Messages[1].ToolCalls, 2)
	assert.Equal(t, "function", req.Messages[1].ToolCalls[0].Type)
	assert.JSONEq(t, `{"pattern":"teh"}`, req.Messages[1].ToolCalls[0].Function.Arguments)

	assert.Equal(t, "tool", req.Messages[2].Role)
	assert.Equal(t, "call_1", req.Messages[2].ToolCallID)
	assert.Equal(t, "grep", req.Messages[2].Name)
	assert.JSONEq(t, `[]`, *req.Messages[2].Content)

	assert.Equal(t, "tool", req.Messages[3].Role)
	assert.Equal(t, "call_2", req.Messages[3].ToolCallID)
	assert.JSONEq(t, `{"error":"target not found"}`, *req.Messages[3].Content)

	require.Len(t, req.Tools, 2)
	assert.Equal(t, "read_workspace_file", req.Tools[0].Function.Name)
	assert.Equal(t, "object", req.Tools[0].Function.Parameters["type"])
	assert.Equal(t, []any{"path"}, req.Tools[0].Function.Parameters["required"])
}

func TestRequestOmitsToolsWhenDisabled(t *testing.T) {
	var raw map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	})

	_, err := c.Complete(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	_, hasTools := raw["tools"]
	assert.False(t, hasTools)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[
			{"id":"meta-llama/llama-3.2-90b-instruct","object":"model","created":1,"owned_by":"meta"},
			{"id":"gpt-4o","object":"model","created":2,"owned_by":"openai"}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{ID: "openrouter", Type: ProviderTypeOpenRouter, BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama-3.2-90b-instruct", models[0].Name)
	assert.Equal(t, "meta-llama/llama-3.2-90b-instruct", models[0].InternalName)
	assert.Equal(t, "openrouter", models[0].Provider)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestListModelsUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := c.ListModels(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrAuth)
}

func TestOllamaProviderFiltersTools(t *testing.T) {
	var mu sync.Mutex
	var toolCounts []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			var req chatRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			toolCounts = append(toolCounts, len(req.Tools))
			mu.Unlock()
			io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
		case "/api/tags":
			io.WriteString(w, `{"models":[{"name":"llama3.1:latest","model":"llama3.1:latest","size":4700000000}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(Config{ID: "ollama", Type: ProviderTypeOllama, BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	for _, name := range []string{"llama3.1:latest", "gemma2:9b"} {
		_, err := p.Complete(context.Background(), model.ChatRequest{
			Model:    name,
			Messages: testutil.TestMessages(),
			Tools:    testutil.TestTools(),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []int{2, 0}, toolCounts)

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "llama3.1:latest", models[0].Name)
	assert.Equal(t, "ollama", models[0].Provider)
	assert.NoError(t, p.Ping(context.Background()))
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"ollama defaults", Config{Type: ProviderTypeOllama}, ""},
		{"openai with key", Config{Type: ProviderTypeOpenAI, APIKey: "k"}, ""},
		{"openai without key", Config{Type: ProviderTypeOpenAI}, "API key is required"},
		{"openrouter without key", Config{Type: ProviderTypeOpenRouter}, "API key is required"},
		{"unknown type", Config{Type: ProviderType("mystery")}, "unknown provider type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestMapProviderIDToType(t *testing.T) {
	assert.Equal(t, ProviderTypeOllama, MapProviderIDToType("ollama"))
	assert.Equal(t, ProviderTypeOpenRouter, MapProviderIDToType("openrouter"))
	assert.Equal(t, ProviderTypeOpenAI, MapProviderIDToType("openai"))
	assert.Equal(t, ProviderTypeOpenAI, MapProviderIDToType("my-vllm"))
}

func TestInitializeProviders(t *testing.T) {
	store := config.NewCredentialStore(config.SecurityPlainText, "")
	require.NoError(t, store.Set("openrouter", "sk-or"))

	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{ID: "ollama", Type: "ollama", BaseURL: "http://localhost:11434", Enabled: true},
			{ID: "openrouter", Type: "openrouter", Enabled: true},
			{ID: "openai", Type: "openai", Enabled: true},
			{ID: "disabled", Type: "openai", Enabled: false},
		},
		CredentialStore: store,
	}

	providers := InitializeProviders(cfg)
	assert.Contains(t, providers, "ollama")
	assert.Contains(t, providers, "openrouter")
	assert.NotContains(t, providers, "openai", "no API key stored")
	assert.NotContains(t, providers, "disabled")
}

func TestExtractErrorMessageTruncates(t *testing.T) {
	long := strings.Repeat("x", 600)
	msg := extractErrorMessage([]byte(long))
	assert.Len(t, msg, 503)
	assert.True(t, strings.HasSuffix(msg, "..."))
}
