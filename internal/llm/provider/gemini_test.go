package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiProvider_Name(t *testing.T) {
	p := NewGeminiProvider("test-key", geminiBaseURL)
	if p.Name() != "gemini" {
		t.Errorf("expected 'gemini', got %s", p.Name())
	}
}

func TestGeminiProvider_CreateCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify API key in URL
		if !strings.Contains(r.URL.RawQuery, "key=test-key") {
			t.Error("missing API key in URL")
		}

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)

		contents, ok := req["contents"].([]any)
		if !ok || len(contents) == 0 {
			t.Error("expected contents in request")
		}

		resp := geminiResponse{
			Candidates: []struct {
				Content      geminiContent `json:"content"`
				FinishReason string        `json:"finishReason"`
			}{
				{
					Content: geminiContent{
						Role:  "model",
						Parts: []geminiPart{{Text: "Hello from Gemini!"}},
					},
					FinishReason: "STOP",
				},
			},
			UsageMetadata: struct {
				PromptTokenCount     int `json:"promptTokenCount"`
				CandidatesTokenCount int `json:"candidatesTokenCount"`
				TotalTokenCount      int `json:"totalTokenCount"`
			}{
				PromptTokenCount:     10,
				CandidatesTokenCount: 5,
				TotalTokenCount:      15,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewGeminiProvider("test-key", server.URL)
	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
		Model:    "gemini-1.5-flash",
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "Hello from Gemini!" {
		t.Errorf("expected 'Hello from Gemini!', got %s", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected 'stop', got %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestGeminiProvider_SystemInstruction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)

		sysInst, ok := req["systemInstruction"].(map[string]any)
		if !ok {
			t.Error("expected systemInstruction in request")
		} else {
			parts, _ := sysInst["parts"].([]any)
			if len(parts) == 0 {
				t.Error("expected parts in systemInstruction")
			}
		}

		// A system message must not appear in contents.
		contents, _ := req["contents"].([]any)
		if len(contents) != 2 {
			t.Errorf("expected 2 contents, got %d", len(contents))
		}

		resp := geminiResponse{
			Candidates: []struct {
				Content      geminiContent `json:"content"`
				FinishReason string        `json:"finishReason"`
			}{
				{
					Content:      geminiContent{Role: "model", Parts: []geminiPart{{Text: "ok"}}},
					FinishReason: "STOP",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewGeminiProvider("test-key", server.URL)
	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "You are a supportive assistant."},
			{Role: "user", Content: "Hi"},
			{Role: "model", Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGeminiProvider_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "API key not valid", "status": "PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	p := NewGeminiProvider("bad-key", server.URL)
	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})

	if err == nil {
		t.Fatal("expected error")
	}

	provErr, ok := err.(*ProviderError)
	if !ok {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if provErr.Code != ErrorCodeAuthentication {
		t.Errorf("expected authentication error, got %s", provErr.Code)
	}
	if !strings.Contains(provErr.Message, "API key not valid") {
		t.Errorf("upstream message not surfaced: %q", provErr.Message)
	}
}

func TestGeminiProvider_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"code": 500, "message": "internal", "status": "INTERNAL"}}`))
	}))
	defer server.Close()

	p := NewGeminiProvider("test-key", server.URL)
	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != geminiMaxRetries {
		t.Errorf("expected %d attempts, got %d", geminiMaxRetries, attempts)
	}
}

// closeTrackingBody flags when a response body is closed.
type closeTrackingBody struct {
	io.Reader
	closed *bool
}

func (b *closeTrackingBody) Close() error {
	*b.closed = true
	return nil
}

// serverErrorTransport serves 500s and records whether every earlier
// attempt's body was already closed when the next attempt starts.
type serverErrorTransport struct {
	bodies []*bool
	leaked bool
}

func (t *serverErrorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for _, closed := range t.bodies {
		if !*closed {
			t.leaked = true
		}
	}

	closed := new(bool)
	t.bodies = append(t.bodies, closed)
	return &http.Response{
		StatusCode: http.StatusInternalServerError,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body: &closeTrackingBody{
			Reader: strings.NewReader(`{"error": {"code": 500, "message": "internal", "status": "INTERNAL"}}`),
			closed: closed,
		},
	}, nil
}

func TestGeminiProvider_RetryClosesEarlierResponseBodies(t *testing.T) {
	transport := &serverErrorTransport{}
	p := NewGeminiProvider("test-key", "http://gemini.invalid")
	p.client = &http.Client{Transport: transport}

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	if len(transport.bodies) != geminiMaxRetries {
		t.Fatalf("expected %d attempts, got %d", geminiMaxRetries, len(transport.bodies))
	}
	if transport.leaked {
		t.Error("a retried attempt started before the previous response body was closed")
	}
	for i, closed := range transport.bodies {
		if !*closed {
			t.Errorf("attempt %d response body never closed", i+1)
		}
	}
}

func TestGeminiProvider_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	p := NewGeminiProvider("test-key", server.URL)
	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	if err == nil {
		t.Fatal("expected error for empty candidates")
	}
}
