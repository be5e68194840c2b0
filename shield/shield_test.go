package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	// WHAT: Every configured header lands on the response.
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestHeadToGet(t *testing.T) {
	// WHAT: HEAD requests reach GET-registered handlers as GET.
	var seen string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Method
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("HEAD", "/", nil))
	if seen != "GET" {
		t.Errorf("method = %q, want GET", seen)
	}
}

func TestTraceID(t *testing.T) {
	// WHAT: The trace ID shows up in both the context and the header.
	var fromCtx string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = GetTraceID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if fromCtx == "" {
		t.Fatal("no trace ID in context")
	}
	if got := rec.Header().Get("X-Trace-ID"); got != fromCtx {
		t.Errorf("header trace ID %q != context trace ID %q", got, fromCtx)
	}
}

func TestMaxBody(t *testing.T) {
	// WHAT: Oversized bodies fail to read past the cap.
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		if _, err := r.Body.Read(buf); err == nil {
			t.Error("read past body cap succeeded")
		}
	}))
	req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 64)))
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRateLimiter(t *testing.T) {
	// WHAT: The request after the budget is exhausted gets a 429; a
	// different client IP still passes.
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/subjects", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: code = %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/subjects", nil)
	req.RemoteAddr = "198.51.100.7:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("code = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/subjects", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client blocked: code = %d", rec.Code)
	}
}

func TestRateLimiterSweepsExpiredBuckets(t *testing.T) {
	// WHAT: Once a bucket's window has passed, the next eligible sweep
	// drops it, so the map does not grow with one entry per client ever
	// seen.
	rl := NewRateLimiter(1, time.Nanosecond)
	h := rl.Middleware(okHandler())

	req := httptest.NewRequest("GET", "/subjects", nil)
	req.RemoteAddr = "198.51.100.7:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if _, ok := rl.buckets.Load("198.51.100.7"); !ok {
		t.Fatal("bucket not created")
	}

	time.Sleep(time.Millisecond) // let the nanosecond window expire
	rl.lastGC.Store(time.Now().Add(-gcInterval - time.Second).UnixNano())

	req = httptest.NewRequest("GET", "/subjects", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if _, ok := rl.buckets.Load("198.51.100.7"); ok {
		t.Error("expired bucket survived the sweep")
	}
}

func TestRateLimiterExclude(t *testing.T) {
	// WHAT: Excluded prefixes never count against the budget.
	rl := NewRateLimiter(1, time.Minute, "/healthz")
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("health check blocked on request %d", i+1)
		}
	}
}

func TestExtractIP(t *testing.T) {
	// WHAT: X-Forwarded-For wins over RemoteAddr; the first hop counts.
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	if got := ExtractIP(req); got != "10.0.0.1" {
		t.Errorf("ip = %q, want 10.0.0.1", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ExtractIP(req); got != "203.0.113.5" {
		t.Errorf("ip = %q, want 203.0.113.5", got)
	}
}
