package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	rl := NewTokenRateLimiter(5, 5)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		if !rl.Allow("tok") {
			t.Fatalf("expected request %d within burst to be allowed", i)
		}
	}
	if rl.Allow("tok") {
		t.Fatal("expected request beyond burst to be rate limited")
	}
}

func TestTokenRateLimiterTracksTokensIndependently(t *testing.T) {
	rl := NewTokenRateLimiter(1, 1)
	defer rl.Stop()

	if !rl.Allow("a") {
		t.Fatal("expected first call for token a to be allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("expected token b to have its own independent bucket")
	}
	if rl.Allow("a") {
		t.Fatal("expected token a to still be limited")
	}
}

func TestTokenRateLimiterRetryAfterIsPositiveWhenLimited(t *testing.T) {
	rl := NewTokenRateLimiter(1, 1)
	defer rl.Stop()

	rl.Allow("tok") // consumes the single burst slot
	delay := rl.RetryAfter("tok")
	if delay <= 0 {
		t.Fatalf("expected positive retry-after once burst is exhausted, got %v", delay)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(req); got != "abc123" {
		t.Fatalf("expected abc123, got %q", got)
	}

	reqNone := httptest.NewRequest(http.MethodGet, "/state", nil)
	if got := bearerToken(reqNone); got != "" {
		t.Fatalf("expected empty token for missing header, got %q", got)
	}

	reqMalformed := httptest.NewRequest(http.MethodGet, "/state", nil)
	reqMalformed.Header.Set("Authorization", "Basic xyz")
	if got := bearerToken(reqMalformed); got != "" {
		t.Fatalf("expected empty token for non-bearer scheme, got %q", got)
	}
}
