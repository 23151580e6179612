package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(url string, attempts int) *Client {
	return NewClient(Options{BaseURL: url, Timeout: time.Second, RetryAttempts: attempts, RetryDelay: time.Millisecond}, zerolog.Nop())
}

func TestChatSendsOptionsAndImages(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chatPath || r.Method != http.MethodPost {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "bullish"},
			"done":    true,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	messages := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "look"},
	}
	reply, err := c.Chat(context.Background(), "llava:13b", messages,
		ModelOptions{Temperature: 0.2, TopP: 0.9, TopK: 40, MaxTokens: 512}, [][]byte{[]byte("png")})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "bullish" {
		t.Fatalf("reply = %q", reply)
	}
	if got.Stream {
		t.Fatal("stream must be false")
	}
	if got.Model != "llava:13b" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages[0].Images) != 0 {
		t.Fatal("system message must not carry images")
	}
	if imgs := got.Messages[1].Images; len(imgs) != 1 || imgs[0] != base64.StdEncoding.EncodeToString([]byte("png")) {
		t.Fatalf("images = %v", imgs)
	}
	if got.Options["num_predict"] != float64(512) || got.Options["top_k"] != float64(40) {
		t.Fatalf("options = %v", got.Options)
	}
	if len(messages[1].Images) != 0 {
		t.Fatal("caller's messages must not be mutated")
	}
}

func TestChatRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "loading model"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"content": "ok"}})
	}))
	defer srv.Close()

	reply, err := newTestClient(srv.URL, 3).Generate(context.Background(), "qwen", "hi", ModelOptions{}, nil)
	if err != nil {
		t.Fatalf("Generate should succeed after retries: %v", err)
	}
	if reply != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("reply=%q calls=%d", reply, calls)
	}
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "model 'ghost' not found"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Generate(context.Background(), "ghost", "hi", ModelOptions{}, nil)
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected APIError 404, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx should not be retried, calls=%d", calls)
	}
}

func TestChatRequiresUserMessageForImages(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0", 1)
	_, err := c.Chat(context.Background(), "m", []Message{{Role: "system", Content: "x"}}, ModelOptions{}, [][]byte{{1}})
	if err == nil {
		t.Fatal("images without a user message should fail")
	}
}

func TestListAndHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tagsPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "qwen2.5:14b", "size": 9000000000},
				{"name": "llava:latest", "size": 4000000000},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	models, err := c.ListModels(context.Background())
	if err != nil || len(models) != 2 {
		t.Fatalf("ListModels = %v, %v", models, err)
	}
	for name, want := range map[string]bool{"llava": true, "qwen2.5:14b": true, "qwen2.5": true, "qwen": false, "mistral": false} {
		ok, err := c.HasModel(context.Background(), name)
		if err != nil {
			t.Fatalf("HasModel(%q): %v", name, err)
		}
		if ok != want {
			t.Errorf("HasModel(%q) = %v, want %v", name, ok, want)
		}
	}
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := newTestClient(url, 2).ListModels(context.Background()); err == nil {
		t.Fatal("closed server should produce an error")
	}
}
