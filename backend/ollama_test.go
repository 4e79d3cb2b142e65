package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllama_ChatSuccess(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{
			"model": "llama3.2:3b",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "try a repeat block"}},
			},
		})
	}))
	defer server.Close()

	b := NewOllama("local", server.URL+"/v1", "llama3.2:3b")

	text, model, err := b.Chat(context.Background(), "you are a tutor", "how do I loop?")
	require.NoError(t, err)
	assert.Equal(t, "try a repeat block", text)
	assert.Equal(t, "llama3.2:3b", model)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "you are a tutor", captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
}

func TestOllama_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	b := NewOllama("local", server.URL, "llama3.2:3b")

	_, _, err := b.Chat(context.Background(), "i", "m")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestOllama_MissingModelIsNotInstalled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model 'llama3.2:3b' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	b := NewOllama("local", server.URL, "llama3.2:3b")

	_, _, err := b.Chat(context.Background(), "i", "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInstalled)
	assert.True(t, IsFatal(err))
}

func TestOllama_AuthErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	b := NewOllama("local", server.URL, "llama3.2:3b")

	_, _, err := b.Chat(context.Background(), "i", "m")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestOllama_ConnectionRefusedIsTransient(t *testing.T) {
	// Closed server port: dial fails.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	b := NewOllama("local", server.URL, "llama3.2:3b")

	_, _, err := b.Chat(context.Background(), "i", "m")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestOllama_EmptyChoicesIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"model": "m", "choices": []any{}})
	}))
	defer server.Close()

	b := NewOllama("local", server.URL, "llama3.2:3b")

	_, _, err := b.Chat(context.Background(), "i", "m")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestRemote_RequiresAcknowledgement(t *testing.T) {
	b := NewRemote("hosted", "https://api.example.com/v1", "gpt-4o-mini", "key")

	_, _, err := b.Chat(context.Background(), "i", "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAcknowledged)
	assert.True(t, IsFatal(err))
}

func TestRemote_RequiresAPIKey(t *testing.T) {
	b := NewRemote("hosted", "https://api.example.com/v1", "gpt-4o-mini", "",
		WithAcknowledged(true))

	_, _, err := b.Chat(context.Background(), "i", "m")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestRemote_ChatSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hello"}},
			},
		})
	}))
	defer server.Close()

	b := NewRemote("hosted", server.URL, "gpt-4o-mini", "secret-key",
		WithAcknowledged(true))

	text, model, err := b.Chat(context.Background(), "i", "m")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "gpt-4o-mini", model)
}
