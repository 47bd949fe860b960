package rpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientLimiterPerAddress(t *testing.T) {
	limiter := newClientLimiter(60, 2)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	reqA := httptest.NewRequest(http.MethodPost, "/", nil)
	reqA.RemoteAddr = "10.0.0.1:5000"
	reqB := httptest.NewRequest(http.MethodPost, "/", nil)
	reqB.RemoteAddr = "10.0.0.2:5000"

	if !limiter.Allow(reqA) || !limiter.Allow(reqA) {
		t.Fatalf("burst should admit two requests")
	}
	if limiter.Allow(reqA) {
		t.Fatalf("third request within the same instant should be throttled")
	}
	if !limiter.Allow(reqB) {
		t.Fatalf("other clients keep their own budget")
	}
	now = now.Add(time.Second)
	if !limiter.Allow(reqA) {
		t.Fatalf("one token refills per second at 60/min")
	}
}

func TestClientLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := newClientLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	limiter.Allow(req)
	now = now.Add(visitorTTL + time.Second)
	other := httptest.NewRequest(http.MethodPost, "/", nil)
	other.RemoteAddr = "10.0.0.9:5000"
	limiter.Allow(other)
	if _, ok := limiter.visitors["10.0.0.1"]; ok {
		t.Fatalf("idle visitor should have been evicted")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *clientLimiter
	if !limiter.Allow(httptest.NewRequest(http.MethodPost, "/", nil)) {
		t.Fatalf("nil limiter must allow")
	}
	if newClientLimiter(0, 5) != nil {
		t.Fatalf("zero rate disables limiting")
	}
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.7" {
		t.Fatalf("unexpected client id %q", got)
	}
}
