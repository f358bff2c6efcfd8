package server

import (
	"net/http"
	"sync"
	"testing"

	"github.com/lawnchairsociety/wfcgen/internal/config"
)

func TestConnLimiter_PerIPLimit(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 2, MaxTotal: 100})

	if !limiter.TryAcquire("192.168.1.1") || !limiter.TryAcquire("192.168.1.1") {
		t.Fatal("first two streams should be allowed")
	}
	if limiter.TryAcquire("192.168.1.1") {
		t.Error("third stream from same IP should be rejected")
	}
	if !limiter.TryAcquire("192.168.1.2") {
		t.Error("stream from a different IP should be allowed")
	}

	limiter.Release("192.168.1.1")
	if !limiter.TryAcquire("192.168.1.1") {
		t.Error("stream should be allowed after release")
	}
}

func TestConnLimiter_TotalLimit(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 10, MaxTotal: 3})

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if !limiter.TryAcquire(ip) {
			t.Fatalf("stream from %s should be allowed", ip)
		}
	}
	if limiter.TryAcquire("10.0.0.4") {
		t.Error("fourth stream should be rejected by the total limit")
	}

	limiter.Release("10.0.0.1")
	if !limiter.TryAcquire("10.0.0.4") {
		t.Error("stream should be allowed after release")
	}
}

func TestConnLimiter_Unlimited(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{})

	for i := 0; i < 100; i++ {
		if !limiter.TryAcquire("192.168.1.1") {
			t.Fatalf("stream %d should be allowed when unlimited", i)
		}
	}
}

func TestConnLimiter_Stats(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 10, MaxTotal: 100})

	limiter.TryAcquire("192.168.1.1")
	limiter.TryAcquire("192.168.1.1")
	limiter.TryAcquire("192.168.1.2")

	open, clients := limiter.Stats()
	if open != 3 || clients != 2 {
		t.Errorf("Stats() = %d, %d; want 3, 2", open, clients)
	}
	if n := limiter.IPCount("192.168.1.1"); n != 2 {
		t.Errorf("IPCount = %d, want 2", n)
	}

	limiter.Release("192.168.1.2")
	limiter.Release("192.168.1.2") // extra release is harmless
	open, clients = limiter.Stats()
	if open != 2 || clients != 1 {
		t.Errorf("after release Stats() = %d, %d; want 2, 1", open, clients)
	}
	if n := limiter.IPCount("192.168.1.3"); n != 0 {
		t.Errorf("IPCount for unknown IP = %d, want 0", n)
	}
}

func TestConnLimiter_Concurrent(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 5, MaxTotal: 0})

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.TryAcquire("172.16.0.1") {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acquired != 5 {
		t.Errorf("acquired %d slots, want 5", acquired)
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"192.168.1.1:12345", "192.168.1.1"},
		{"[::1]:12345", "::1"},
		{"localhost:8080", "localhost"},
		{"192.168.1.1", "192.168.1.1"},
	}

	for _, tt := range tests {
		if got := extractIP(tt.input); got != tt.expected {
			t.Errorf("extractIP(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		expected   string
	}{
		{"forwarded single", "203.0.113.50", "", "10.0.0.1:12345", "203.0.113.50"},
		{"forwarded chain", "203.0.113.50, 70.41.3.18, 150.172.238.178", "", "10.0.0.1:12345", "203.0.113.50"},
		{"real ip", "", "203.0.113.50", "10.0.0.1:12345", "203.0.113.50"},
		{"forwarded wins", "203.0.113.50", "198.51.100.25", "10.0.0.1:12345", "203.0.113.50"},
		{"blank forwarded entry", " , 70.41.3.18", "", "10.0.0.1:12345", "10.0.0.1"},
		{"remote addr", "", "", "192.168.1.100:54321", "192.168.1.100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{RemoteAddr: tt.remoteAddr, Header: make(http.Header)}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := getRealIP(req); got != tt.expected {
				t.Errorf("getRealIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}
