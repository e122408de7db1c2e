package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/atlas-packer/internal/packing"
	"github.com/eugenenazirov/atlas-packer/internal/storage"
)

func TestLoggingMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var called bool
	handler := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
}

func TestLoggingMiddlewareLevelFollowsStatus(t *testing.T) {
	testCases := []struct {
		status int
		level  zapcore.Level
	}{
		{status: http.StatusOK, level: zapcore.InfoLevel},
		{status: http.StatusUnprocessableEntity, level: zapcore.WarnLevel},
		{status: http.StatusTooManyRequests, level: zapcore.WarnLevel},
		{status: http.StatusInternalServerError, level: zapcore.ErrorLevel},
	}

	for _, tc := range testCases {
		core, logs := observer.New(zapcore.DebugLevel)
		handler := loggingMiddleware(zap.New(core), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte("atlas"))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/pack", nil))

		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("expected one log entry for status %d, got %d", tc.status, len(entries))
		}
		if entries[0].Level != tc.level {
			t.Fatalf("status %d: expected level %s, got %s", tc.status, tc.level, entries[0].Level)
		}
		fields := entries[0].ContextMap()
		if fields["bytes"] != int64(5) || fields["path"] != "/api/pack" {
			t.Fatalf("unexpected log fields: %v", fields)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))

	testCases := []struct {
		header string
		keep   bool
	}{
		{header: "build-42", keep: true},
		{header: "", keep: false},
		{header: "has space", keep: false},
		{header: strings.Repeat("a", maxRequestIDLength+1), keep: false},
		{header: "naïve", keep: false},
	}

	for _, tc := range testCases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", tc.header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != seen {
			t.Fatalf("response header %q does not match context id %q", got, seen)
		}
		if tc.keep && seen != tc.header {
			t.Fatalf("expected id %q to be kept, got %q", tc.header, seen)
		}
		if !tc.keep && (seen == tc.header || len(seen) != 36) {
			t.Fatalf("expected a generated UUID instead of %q, got %q", tc.header, seen)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := recoveryMiddleware(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestResponseRecorderWriteHeader(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: underlying}
	rec.WriteHeader(http.StatusTeapot)

	if rec.status != http.StatusTeapot {
		t.Fatalf("expected status to be recorded")
	}
	if underlying.Code != http.StatusTeapot {
		t.Fatalf("expected status to propagate to ResponseWriter")
	}

	if _, err := rec.Write([]byte("short and stout")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if rec.bytes != len("short and stout") || underlying.Body.String() != "short and stout" {
		t.Fatalf("expected body bytes to be counted and forwarded, got %d", rec.bytes)
	}
}

func TestRouterPreflightAllowsSheetMethods(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimit(0, 0))

	req := httptest.NewRequest(http.MethodOptions, "/api/sheets/icons", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Fatalf("expected DELETE to be allowed, got %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After") {
		t.Fatalf("expected Retry-After to be exposed")
	}
}

func TestWithRateLimiterOptionAppliesLimiter(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(newRecordingLimiter(0)))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limiter to block request, got %d", rec.Code)
	}
}

func TestWithRateLimitDisablesLimiterWhenZero(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(newRecordingLimiter(0)), WithRateLimit(0, 0))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected limiter to be disabled, got %d", rec.Code)
	}
}

func TestWithRateLimitEnforcesLimit(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimit(1, 1))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec.Code)
	}

	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req.Clone(req.Context()))
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limiter to block second request, got %d", rec2.Code)
	}
}

func TestRouterRejectsUnknownMethod(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimit(0, 0))

	req := httptest.NewRequest(http.MethodGet, "/api/pack", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /api/pack, got %d", rec.Code)
	}
}

func TestRouterLogsRequests(t *testing.T) {
	router := newTestRouter(t, WithLogging(true), WithRateLimit(0, 0))

	req := httptest.NewRequest(http.MethodGet, "/api/sheets", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func newTestRouter(t *testing.T, opts ...RouterOption) http.Handler {
	t.Helper()

	store := storage.NewMemoryStorage()
	handler := NewHandler(packing.New(), store)
	logger := zaptest.NewLogger(t)
	return NewRouter(handler, logger, opts...)
}
