package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// CooldownHeaderMiddleware Tests
// =============================================================================

func TestCooldownHeaderMiddleware(t *testing.T) {
	// Handler fills the cooldown container after its throttle decision
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRefreshCooldown(r.Context(), 30*time.Second, 30*time.Second)
		w.WriteHeader(http.StatusOK)
	})

	wrapped := CooldownHeaderMiddleware(handler)

	req := httptest.NewRequest("POST", "/v1/wisdom/refresh", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	checkHeader(t, rec, "x-refresh-cooldown-seconds", "30")
	checkHeader(t, rec, "x-refresh-retry-after-ms", "30000")

	// Retry-After is reserved for rejections
	if rec.Header().Get("Retry-After") != "" {
		t.Error("Expected no Retry-After header on an accepted refresh")
	}
}

func TestCooldownHeaderMiddleware_RetryAfterOn429(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRefreshCooldown(r.Context(), 30*time.Second, 20*time.Second)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	wrapped := CooldownHeaderMiddleware(handler)

	req := httptest.NewRequest("POST", "/v1/wisdom/refresh", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	checkHeader(t, rec, "x-refresh-cooldown-seconds", "30")
	checkHeader(t, rec, "x-refresh-retry-after-ms", "20000")
	checkHeader(t, rec, "Retry-After", "20")
}

func TestCooldownHeaderMiddleware_RetryAfterRoundsUp(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRefreshCooldown(r.Context(), 30*time.Second, 1500*time.Millisecond)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	wrapped := CooldownHeaderMiddleware(handler)

	req := httptest.NewRequest("POST", "/v1/wisdom/refresh", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	// 1.5s remaining must not advertise "1": the client would retry early
	checkHeader(t, rec, "Retry-After", "2")
}

func TestCooldownHeaderMiddleware_NoInfo(t *testing.T) {
	// Handler that never fills the cooldown container
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := CooldownHeaderMiddleware(handler)

	req := httptest.NewRequest("GET", "/v1/wisdom", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Header().Get("x-refresh-cooldown-seconds") != "" {
		t.Error("Expected no cooldown headers when handler sets nothing")
	}
	if rec.Header().Get("Retry-After") != "" {
		t.Error("Expected no Retry-After header when handler sets nothing")
	}
}

func TestCooldownHeaderMiddleware_ImplicitWriteHeader(t *testing.T) {
	// Write without an explicit WriteHeader still gets the headers
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetRefreshCooldown(r.Context(), 30*time.Second, 5*time.Second)
		w.Write([]byte(`{"ok":true}`))
	})

	wrapped := CooldownHeaderMiddleware(handler)

	req := httptest.NewRequest("POST", "/v1/wisdom/refresh", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	checkHeader(t, rec, "x-refresh-cooldown-seconds", "30")
	checkHeader(t, rec, "x-refresh-retry-after-ms", "5000")
	if rec.Header().Get("Retry-After") != "" {
		t.Error("Expected no Retry-After on an implicit 200")
	}
}

func TestGetRefreshCooldown(t *testing.T) {
	tests := []struct {
		name   string
		setup  func() context.Context
		expect bool
	}{
		{
			name: "returns container when middleware seeded it",
			setup: func() context.Context {
				info := &CooldownInfo{}
				return context.WithValue(context.Background(), cooldownContextKey{}, info)
			},
			expect: true,
		},
		{
			name: "returns nil when not set",
			setup: func() context.Context {
				return context.Background()
			},
			expect: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.setup()
			result := GetRefreshCooldown(ctx)
			if tt.expect && result == nil {
				t.Error("expected a container, got nil")
			}
			if !tt.expect && result != nil {
				t.Errorf("expected nil, got %+v", result)
			}
		})
	}
}

func TestSetRefreshCooldown_NoContainer(t *testing.T) {
	// Should be a no-op when the middleware isn't mounted
	SetRefreshCooldown(context.Background(), 30*time.Second, time.Second)
}

// =============================================================================
// RequestIDMiddleware Tests
// =============================================================================

func TestRequestIDMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request ID is in context
		requestID := GetRequestID(r.Context())
		if requestID == "" {
			t.Error("Expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	// Verify X-Request-ID header is set
	requestID := rec.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	// Make two requests
	req1 := httptest.NewRequest("GET", "/", nil)
	rec1 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest("GET", "/", nil)
	rec2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec2, req2)

	id1 := rec1.Header().Get("X-Request-ID")
	id2 := rec2.Header().Get("X-Request-ID")

	if id1 == id2 {
		t.Errorf("Expected unique request IDs, got same: %s", id1)
	}
}

func TestRequestIDMiddleware_HonorsInbound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	checkHeader(t, rec, "X-Request-ID", "caller-supplied-id")
}

func TestGetRequestID_NotSet(t *testing.T) {
	ctx := context.Background()
	if id := GetRequestID(ctx); id != "" {
		t.Errorf("Expected empty string, got %q", id)
	}
}

// =============================================================================
// TimeoutMiddleware Tests
// =============================================================================

func TestTimeoutMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check that context has deadline
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Error("Expected context to have deadline")
		}
		if deadline.IsZero() {
			t.Error("Expected non-zero deadline")
		}
		w.WriteHeader(http.StatusOK)
	})

	wrapped := TimeoutMiddleware(30 * time.Second)(handler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestTimeoutMiddleware_ContextCancelled(t *testing.T) {
	// Create a handler that checks if context is cancelled
	contextCancelled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			contextCancelled = true
		case <-time.After(100 * time.Millisecond):
			// Context should be cancelled before this
		}
		w.WriteHeader(http.StatusOK)
	})

	// Very short timeout
	wrapped := TimeoutMiddleware(10 * time.Millisecond)(handler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if !contextCancelled {
		t.Error("Expected context to be cancelled due to timeout")
	}
}

// =============================================================================
// LoggingMiddleware Tests
// =============================================================================

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Chain RequestIDMiddleware -> LoggingMiddleware -> handler
	wrapped := RequestIDMiddleware(LoggingMiddleware(logger)(testHandler))

	req := httptest.NewRequest("GET", "/test-path", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	output := buf.String()

	if !strings.Contains(output, "request completed") {
		t.Error("Expected 'request completed' in log output")
	}
	if !strings.Contains(output, "/test-path") {
		t.Error("Expected path in log output")
	}
	if !strings.Contains(output, "status=200") {
		t.Errorf("Expected status in log output, got: %s", output)
	}
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success logs info", http.StatusOK, "level=INFO"},
		{"client error logs warn", http.StatusBadRequest, "level=WARN"},
		{"server error logs error", http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			wrapped := LoggingMiddleware(logger)(testHandler)

			req := httptest.NewRequest("GET", "/", nil)
			rec := httptest.NewRecorder()

			wrapped.ServeHTTP(rec, req)

			if !strings.Contains(buf.String(), tt.level) {
				t.Errorf("Expected %s in log output, got: %s", tt.level, buf.String())
			}
		})
	}
}

func TestAddLogField(t *testing.T) {
	var buf strings.Builder
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "custom_field", "custom_value")
		w.WriteHeader(http.StatusOK)
	})

	wrapped := LoggingMiddleware(logger)(testHandler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	output := buf.String()
	if !strings.Contains(output, "custom_field") || !strings.Contains(output, "custom_value") {
		t.Errorf("Expected custom field in log output, got: %s", output)
	}
}

func TestAddLogField_EmptyValue(t *testing.T) {
	var buf strings.Builder
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "empty_field", "")
		w.WriteHeader(http.StatusOK)
	})

	wrapped := LoggingMiddleware(logger)(testHandler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	output := buf.String()
	// Empty values should not be added
	if strings.Contains(output, "empty_field") {
		t.Errorf("Empty field should not be in log output, got: %s", output)
	}
}

func TestAddLogField_NoContext(t *testing.T) {
	// Should not panic when called with a context that doesn't have log fields
	ctx := context.Background()
	AddLogField(ctx, "key", "value") // Should be a no-op
}

func TestAddError(t *testing.T) {
	var buf strings.Builder
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddError(r.Context(), errors.New("test error message"))
		w.WriteHeader(http.StatusInternalServerError)
	})

	wrapped := LoggingMiddleware(logger)(testHandler)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	output := buf.String()
	if !strings.Contains(output, "error") || !strings.Contains(output, "test error message") {
		t.Errorf("Expected error in log output, got: %s", output)
	}
}

func TestAddError_Nil(t *testing.T) {
	// Should not panic when called with nil error
	ctx := context.Background()
	AddError(ctx, nil) // Should be a no-op
}

// =============================================================================
// itoa Tests
// =============================================================================

func TestItoa(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "0"},
		{1, "1"},
		{10, "10"},
		{100, "100"},
		{12345, "12345"},
		{-1, "-1"},
		{-12345, "-12345"},
		{2147483647, "2147483647"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("itoa(%d)", tt.input), func(t *testing.T) {
			result := itoa(tt.input)
			if result != tt.expected {
				t.Errorf("itoa(%d) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func checkHeader(t *testing.T, rec *httptest.ResponseRecorder, name, expected string) {
	t.Helper()
	actual := rec.Header().Get(name)
	if actual != expected {
		t.Errorf("Header %s = %q, want %q", name, actual, expected)
	}
}
