package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.InDelta(t, 0.3, req.Temperature, 1e-9)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "```S\n[]\n```"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/v1", "test-key", "test-model", 5*time.Second)
	out, err := c.Complete(context.Background(), Request{System: "sys", User: "user", Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "```S\n[]\n```", out)
}

func TestOpenAIClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "", "m", time.Second)
	_, err := c.Complete(context.Background(), Request{User: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestScriptedClientSequenceAndFailure(t *testing.T) {
	fake := NewScriptedClient("one", "two").FailAt(1, context.DeadlineExceeded)

	out, err := fake.Complete(context.Background(), Request{User: "a"})
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	_, err = fake.Complete(context.Background(), Request{User: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Len(t, fake.Calls(), 2)
}
