// Package main implements a mock LLM server for local gateway development.
// It serves OpenAI-compatible /v1/chat/completions responses without a real
// model, so the gateway can be exercised fast, deterministically, and offline.
//
// Usage:
//
//	mock-llm -port 11434 -model mock-tutor
//
// Replies echo a short excerpt of the student message so tests can assert the
// prompt reached the server. Failure injection flags simulate the conditions
// the gateway has to survive:
//
//	-fail-first N    first N requests return 503 (exercises retry and breaker)
//	-latency D       sleep D before each reply (exercises queue wait)
//
// Requests for any model other than -model return the 404 "model not found"
// shape Ollama uses, which the gateway maps to backend_not_installed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type server struct {
	model     string
	failFirst int64
	latency   time.Duration

	requests atomic.Int64
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "invalid_request_error")
		return
	}

	n := s.requests.Add(1)
	if n <= s.failFirst {
		log.Printf("injecting failure %d/%d", n, s.failFirst)
		writeError(w, http.StatusServiceUnavailable, "server overloaded", "server_error")
		return
	}

	if req.Model != s.model {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %q not found, try pulling it first", req.Model), "invalid_request_error")
		return
	}

	if s.latency > 0 {
		time.Sleep(s.latency)
	}

	reply := buildReply(req.Messages)
	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", n),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: reply},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     promptLen(req.Messages) / 4,
			CompletionTokens: len(reply) / 4,
			TotalTokens:      (promptLen(req.Messages) + len(reply)) / 4,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// buildReply produces a deterministic tutoring-flavored answer that quotes the
// last user message, so gateway tests can assert the message survived the trip.
func buildReply(messages []chatMessage) string {
	question := ""
	for _, m := range messages {
		if m.Role == "user" {
			question = m.Content
		}
	}
	excerpt := question
	if len(excerpt) > 60 {
		excerpt = strings.TrimSpace(excerpt[:60]) + "..."
	}
	if excerpt == "" {
		return "What would you like to work on?"
	}
	return fmt.Sprintf("Good question! Let's think about %q step by step. What have you tried so far?", excerpt)
}

func promptLen(messages []chatMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorDetail{Message: message, Type: errType}})
}

func main() {
	port := flag.Int("port", 11434, "listen port")
	model := flag.String("model", "mock-tutor", "model name to serve")
	failFirst := flag.Int64("fail-first", 0, "return 503 for the first N requests")
	latency := flag.Duration("latency", 0, "artificial delay before each reply")
	flag.Parse()

	s := &server{model: *model, failFirst: *failFirst, latency: *latency}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock-llm serving model %q on %s (fail-first=%d, latency=%s)",
		*model, addr, *failFirst, *latency)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
