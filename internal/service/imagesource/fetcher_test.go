package imagesource

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"detectserver/internal/config"
)

func testFetcherConfig() *config.Config {
	return &config.Config{
		FetchTimeout:      2 * time.Second,
		FetchAllowPrivate: true,
		MaxImageBytes:     1 << 20,
	}
}

func TestFetcher_Fetch(t *testing.T) {
	payload := encodePNG(t, 8, 8, color.White)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer server.Close()

	body, err := NewFetcher(testFetcherConfig()).Fetch(context.Background(), server.URL+"/veg.png")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Error("Fetched body differs from served payload")
	}
}

func TestFetcher_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewFetcher(testFetcherConfig()).Fetch(context.Background(), server.URL+"/missing.jpg")
	if err == nil || !strings.Contains(err.Error(), "404 Not Found") {
		t.Errorf("Expected 404 error, got %v", err)
	}
}

func TestFetcher_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0xFF}, 2048))
	}))
	defer server.Close()

	cfg := testFetcherConfig()
	cfg.MaxImageBytes = 1024

	_, err := NewFetcher(cfg).Fetch(context.Background(), server.URL)
	if err == nil || !strings.Contains(err.Error(), "exceeds 1024 bytes") {
		t.Errorf("Expected size limit error, got %v", err)
	}
}

func TestFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testFetcherConfig()
	cfg.FetchTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := NewFetcher(cfg).Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Fetch should give up after the timeout, took %v", elapsed)
	}
}

func TestFetcher_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	_, err = NewFetcher(testFetcherConfig()).Fetch(context.Background(), "http://"+addr+"/img.jpg")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Expected connection refused error, got %v", err)
	}
}

func TestFetcher_BlocksPrivateAddresses(t *testing.T) {
	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer server.Close()

	cfg := testFetcherConfig()
	cfg.FetchAllowPrivate = false

	_, err := NewFetcher(cfg).Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrEgressDenied) {
		t.Errorf("Expected ErrEgressDenied, got %v", err)
	}
	if hit {
		t.Error("Request must not reach a loopback server")
	}
}

func TestFetcher_AllowList(t *testing.T) {
	cfg := testFetcherConfig()
	cfg.FetchAllowedHosts = []string{"images.example.com"}

	_, err := NewFetcher(cfg).Fetch(context.Background(), "http://other.example.com/a.png")
	if !errors.Is(err, ErrEgressDenied) {
		t.Errorf("Expected ErrEgressDenied, got %v", err)
	}
}

func TestFetcher_RedirectOutsideAllowList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://metadata.internal/latest", http.StatusFound)
	}))
	defer server.Close()

	cfg := testFetcherConfig()
	cfg.FetchAllowedHosts = []string{"127.0.0.1"}

	_, err := NewFetcher(cfg).Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrEgressDenied) {
		t.Errorf("Expected redirect to be denied, got %v", err)
	}
}
