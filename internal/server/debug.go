package server

import (
	"net/http"
	"runtime"
	"time"
)

// handleDebugStats serves the pipeline's usage counters plus the
// derived cache hit rate. Error strings in here are pre-redacted at the
// provider boundary; no credential material can appear.
func (s *Server) handleDebugStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pipeline.Stats().View())
}

// handleDebugResetStats zeroes the usage counters.
func (s *Server) handleDebugResetStats(w http.ResponseWriter, r *http.Request) {
	s.pipeline.ResetStats()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stats reset"})
}

// handleDebugClearCache clears the wisdom cache. Usage counters are
// left alone so hit-rate history survives a manual clear.
func (s *Server) handleDebugClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.ClearCache(r.Context()); err != nil {
		AddError(r.Context(), err)
		s.writeError(w, http.StatusInternalServerError, "cache_error", "could not clear the cache")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}

type runtimeResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	AIConfigured bool        `json:"ai_configured"`
	Memory       memoryStats `json:"memory"`
}

type memoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleDebugRuntime(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s.writeJSON(w, http.StatusOK, runtimeResponse{
		Uptime:       time.Since(s.started).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		AIConfigured: s.pipeline.IsConfigured(),
		Memory: memoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	})
}
