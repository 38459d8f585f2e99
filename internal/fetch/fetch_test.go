package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Method = %s, want GET", r.Method)
		}
		if r.Header.Get("User-Agent") != "kemote-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	c := New(Options{HTTPClient: server.Client(), UserAgent: "kemote-test"})
	body, err := c.Get(context.Background(), server.URL+"/e/4x.webp")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(body) != "image-bytes" {
		t.Errorf("body = %q", body)
	}
}

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if doc["query"] != "pepe" {
			t.Errorf("query = %v", doc["query"])
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(Options{HTTPClient: server.Client()})
	body, err := c.PostJSON(context.Background(), server.URL, map[string]string{"query": "pepe"})
	if err != nil {
		t.Fatalf("PostJSON error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestClient_StatusError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))
	defer server.Close()

	c := New(Options{HTTPClient: server.Client()})
	_, err := c.Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %T, want *NetworkError", err)
	}
	if netErr.Kind != KindStatus || netErr.StatusCode != http.StatusNotFound {
		t.Errorf("got kind %v status %d", netErr.Kind, netErr.StatusCode)
	}
	// No retry policy
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := New(Options{Timeout: time.Second})
	_, err := c.Get(context.Background(), url)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
	if netErr.Kind != KindUnreachable {
		t.Errorf("Kind = %v, want unreachable", netErr.Kind)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := New(Options{HTTPClient: server.Client()})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, server.URL)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
	if netErr.Kind != KindTimeout {
		t.Errorf("Kind = %v, want timeout", netErr.Kind)
	}
	if !IsNetworkError(err) {
		t.Error("IsNetworkError should be true")
	}
}

func TestClient_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	c := New(Options{HTTPClient: server.Client(), RequestsPerSecond: 20})
	start := time.Now()
	for i := 0; i < 41; i++ {
		if _, err := c.Get(context.Background(), server.URL); err != nil {
			t.Fatalf("Get error: %v", err)
		}
	}
	// burst of 20, then 21 more at 20/s takes at least ~1s
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("41 requests at 20/s took %v, limiter not applied", elapsed)
	}
}

func TestClient_BodyLimit(t *testing.T) {
	tests := []struct {
		name     string
		maxBytes int64
		served   int
		wantErr  bool
	}{
		{"under limit", 1024, 1000, false},
		{"exactly limit", 1024, 1024, false},
		{"one byte over", 1024, 1025, true},
		{"default limit exceeded", 0, maxResponseBytes + 1024, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write(bytes.Repeat([]byte{'x'}, tt.served))
			}))
			defer server.Close()

			c := New(Options{HTTPClient: server.Client(), MaxBytes: tt.maxBytes})
			body, err := c.Get(context.Background(), server.URL+"/big.gif")
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Get error: %v", err)
				}
				if len(body) != tt.served {
					t.Errorf("len(body) = %d, want %d", len(body), tt.served)
				}
				return
			}
			var netErr *NetworkError
			if !errors.As(err, &netErr) {
				t.Fatalf("err = %v, want *NetworkError", err)
			}
			if netErr.Kind != KindTooLarge {
				t.Errorf("Kind = %v, want too large", netErr.Kind)
			}
			if body != nil {
				t.Errorf("body = %d bytes, want nil", len(body))
			}
		})
	}
}

func TestErrorKind_String(t *testing.T) {
	tests := map[ErrorKind]string{
		KindUnreachable: "unreachable",
		KindStatus:      "status",
		KindTimeout:     "timeout",
		KindTooLarge:    "too large",
		ErrorKind(9):    "kind(9)",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
