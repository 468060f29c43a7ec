package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
)

func TestChat(t *testing.T) {
	t.Parallel()

	p := NewProvider("ollama", "http://mock", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/chat", r.URL.Path)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			options := body["options"].(map[string]interface{})
			require.EqualValues(t, 256, options["num_predict"])
			require.NotContains(t, body, "max_tokens")
			msgs := body["messages"].([]interface{})
			images := msgs[0].(map[string]interface{})["images"].([]interface{})
			require.Equal(t, "AQI=", images[0])

			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`{"message":{"role":"assistant","content":"pong"},"done":true,"eval_count":2,"prompt_eval_count":3}`)),
			}, nil
		}),
	}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:     "llava",
		MaxTokens: 256,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleUser, Content: "ping", Images: []llm.Image{{Data: []byte{1, 2}}}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "pong", resp.Message.Content)
	require.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestStream(t *testing.T) {
	t.Parallel()

	p := NewProvider("ollama", "http://mock", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			body := strings.Join([]string{
				`{"message":{"role":"assistant","content":"ch"},"done":false}`,
				`{"message":{"role":"assistant","content":"unk"},"done":false}`,
				`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
			}, "\n")
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(body)),
			}, nil
		}),
	}

	ch, errCh := p.Stream(context.Background(), llm.ChatRequest{
		Model: "llama3",
		Messages: []llm.ChatMessage{
			{Role: llm.RoleUser, Content: "hi"}},
	})

	var sb strings.Builder
	for chunk := range ch {
		sb.WriteString(chunk.Content)
	}
	require.NoError(t, <-errCh)
	require.Equal(t, "chunk", sb.String())
}

func TestStreamReportsBackendError(t *testing.T) {
	t.Parallel()

	p := NewProvider("ollama", "http://mock", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader("boom")),
			}, nil
		}),
	}

	ch, errCh := p.Stream(context.Background(), llm.ChatRequest{Model: "llama3"})
	for range ch {
	}
	err := <-errCh
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
