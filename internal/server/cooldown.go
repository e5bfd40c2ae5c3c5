package server

import (
	"context"
	"net/http"
	"time"
)

// cooldownContextKey is the context key for refresh cooldown info
type cooldownContextKey struct{}

// CooldownInfo describes the forced-refresh cooldown for response
// headers. Handlers fill it in after consulting the throttle; the
// middleware writes it out just before the first byte of the response.
type CooldownInfo struct {
	// Window is the full cooldown duration between forced refreshes.
	Window time.Duration
	// Remaining is how long until the next forced refresh is accepted.
	Remaining time.Duration
}

// SetRefreshCooldown records cooldown info for the middleware to write
// as headers. No-op when the middleware isn't mounted on the route.
func SetRefreshCooldown(ctx context.Context, window, remaining time.Duration) {
	if info, ok := ctx.Value(cooldownContextKey{}).(*CooldownInfo); ok {
		info.Window = window
		info.Remaining = remaining
	}
}

// GetRefreshCooldown retrieves the cooldown info container from context.
// Returns nil if the middleware isn't present.
func GetRefreshCooldown(ctx context.Context) *CooldownInfo {
	if info, ok := ctx.Value(cooldownContextKey{}).(*CooldownInfo); ok {
		return info
	}
	return nil
}

// CooldownHeaderMiddleware writes normalized refresh-cooldown headers.
// It seeds a mutable container into the request context for handlers to
// fill after the throttle decision, and writes x-refresh-* headers (plus
// Retry-After on 429 responses) when the response starts.
func CooldownHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &CooldownInfo{}
		ctx := context.WithValue(r.Context(), cooldownContextKey{}, info)
		wrapped := &cooldownResponseWriter{
			ResponseWriter: w,
			info:           info,
		}
		next.ServeHTTP(wrapped, r.WithContext(ctx))
	})
}

// cooldownResponseWriter wraps ResponseWriter to write cooldown headers.
type cooldownResponseWriter struct {
	http.ResponseWriter
	info         *CooldownInfo
	wroteHeaders bool
}

func (rw *cooldownResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeaders {
		rw.writeCooldownHeaders(code)
		rw.wroteHeaders = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *cooldownResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeaders {
		rw.writeCooldownHeaders(http.StatusOK)
		rw.wroteHeaders = true
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *cooldownResponseWriter) writeCooldownHeaders(code int) {
	info := rw.info
	if info == nil || info.Window <= 0 {
		return
	}

	h := rw.Header()
	h.Set("x-refresh-cooldown-seconds", itoa(int(info.Window/time.Second)))
	h.Set("x-refresh-retry-after-ms", itoa(int(info.Remaining/time.Millisecond)))

	// Retry-After belongs only on the rejection itself, in whole
	// seconds rounded up so a compliant client never retries early.
	if code == http.StatusTooManyRequests && info.Remaining > 0 {
		seconds := int((info.Remaining + time.Second - 1) / time.Second)
		h.Set("Retry-After", itoa(seconds))
	}
}

// itoa converts int to string without importing strconv
func itoa(i int) string {
	if i == 0 {
		return "0"
	}

	negative := i < 0
	if negative {
		i = -i
	}

	var buf [20]byte
	pos := len(buf)

	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}

	if negative {
		pos--
		buf[pos] = '-'
	}

	return string(buf[pos:])
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher.
func (rw *cooldownResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
