package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{"message": map[string]string{"content": content}},
		},
	})
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{}, zap.NewNop())
	require.Error(t, err)
}

func TestOpenAIEmbedder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "embed-model", req.Model)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.25]}]}`))
	})

	vec, err := NewOpenAIEmbedder(client, "embed-model").Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestOpenAIClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		chatReply(w, "fine")
	})

	out, err := client.Complete(context.Background(), "m", "sys", "prompt", false)
	require.NoError(t, err)
	require.Equal(t, "fine", out)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.Complete(context.Background(), "m", "sys", "prompt", false)
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestChatGate_Decide(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		require.Contains(t, req.Messages[1].Content, "collect sources")
		chatReply(w, `{"requires_human": true, "rationale": "ambiguous scope"}`)
	})

	decision, err := NewChatGate(client, "m").Decide(context.Background(), GateContext{
		Task: model.Task{Name: "collect sources"},
	})
	require.NoError(t, err)
	require.True(t, decision.RequiresHuman)
	require.Equal(t, "ambiguous scope", decision.Rationale)
}

func TestChatGate_UnparseableAnswer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, "maybe?")
	})

	_, err := NewChatGate(client, "m").Decide(context.Background(), GateContext{})
	require.Error(t, err)
}

func TestChatDelegate_Execute(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, `{"entities":[{"title":"A","url":"https://a"}],"tasks":[{"ref":"n1","name":"follow up"}],"dependencies":[{"source":"self","dependent":"n1","data_flow":"automatic"}]}`)
	})

	result, err := NewChatDelegate(client, "m").Execute(context.Background(), ExecutionRequest{
		Task: model.Task{Name: "find papers"},
	})
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	require.JSONEq(t, `{"title":"A","url":"https://a"}`, string(result.Entities[0]))
	require.Len(t, result.Tasks, 1)
	require.Equal(t, model.FlowAutomatic, result.Dependencies[0].DataFlow)
}

func TestChatAssessor_Assess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, "  strong  ")
	})

	out, err := NewChatAssessor(client, "m").Assess(context.Background(),
		model.Criterion{Name: "rigor", Prompt: "Is the method rigorous?"},
		model.Entity{Type: model.EntityPaper, Name: "P", Detail: "text"})
	require.NoError(t, err)
	require.Equal(t, "strong", out)
}
