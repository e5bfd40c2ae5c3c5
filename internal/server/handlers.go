package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/prodyapp/bodhi/internal/activity"
	"github.com/prodyapp/bodhi/internal/domain"
	"github.com/prodyapp/bodhi/internal/throttle"
)

// wisdomResponse is the wire projection of a wisdom outcome.
type wisdomResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Text        string    `json:"text"`
	Explanation string    `json:"explanation,omitempty"`
	Generated   bool      `json:"generated"`
	FromCache   bool      `json:"from_cache"`
	Provider    string    `json:"provider,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

func wisdomResponseFromOutcome(kind domain.PromptKind, outcome domain.Outcome) wisdomResponse {
	resp := wisdomResponse{
		ID:        outcome.ID,
		Kind:      string(kind),
		Status:    string(outcome.Status),
		FromCache: outcome.FromCache,
		Provider:  outcome.Provider,
		Reason:    string(outcome.Reason),
		At:        outcome.At,
	}
	if outcome.Result != nil {
		resp.Text = outcome.Result.Text
		resp.Explanation = outcome.Result.Explanation
		resp.Generated = outcome.Result.Generated
	}
	return resp
}

// handleGetWisdom serves a passive wisdom request: cache first, then
// generation, then the built-in corpus. Never an error body.
func (s *Server) handleGetWisdom(w http.ResponseWriter, r *http.Request) {
	kind := domain.KindDailyThought
	if raw := r.URL.Query().Get("kind"); raw != "" {
		parsed, err := domain.ParseKind(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		kind = parsed
	}

	outcome := s.pipeline.Get(r.Context(), kind, s.promptContext(r), false)
	AddLogField(r.Context(), "outcome", string(outcome.Status))
	s.writeJSON(w, http.StatusOK, wisdomResponseFromOutcome(kind, outcome))
}

// handleRefreshWisdom forces a fresh generation, subject to the
// 30-second cooldown. A denied refresh is 429 with Retry-After.
func (s *Server) handleRefreshWisdom(w http.ResponseWriter, r *http.Request) {
	res := s.agg.Refresh(r.Context())
	SetRefreshCooldown(r.Context(), s.cooldownWindow(), res.RetryIn)

	if !res.Allowed {
		AddLogField(r.Context(), "outcome", "throttled")
		s.writeError(w, http.StatusTooManyRequests, "rate_limited",
			"forced refresh is cooling down")
		return
	}

	AddLogField(r.Context(), "outcome", string(res.Outcome.Status))
	s.writeJSON(w, http.StatusOK, wisdomResponseFromOutcome(domain.KindDailyThought, res.Outcome))
}

// handleHome serves the current home snapshot, waiting for a settled
// one if the stream is cold.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	snap, err := s.agg.Observe(r.Context())
	if err != nil {
		AddError(r.Context(), err)
		s.writeError(w, http.StatusGatewayTimeout, "timeout", "home snapshot was not ready in time")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

type journalRequest struct {
	Body string `json:"body" validate:"required"`
	Mood string `json:"mood" validate:"max=64"`
}

// handleJournal records a journal entry and returns it with its
// assigned ID. The home stream picks the change up through the store's
// change feed.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid_request", "body is required")
		return
	}

	entry := &activity.Entry{Body: req.Body, Mood: req.Mood}
	if err := s.activity.RecordEntry(r.Context(), entry); err != nil {
		AddError(r.Context(), err)
		s.writeError(w, http.StatusInternalServerError, "storage_error", "could not record the entry")
		return
	}

	AddLogField(r.Context(), "entry_id", entry.ID)
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"ai_configured": s.pipeline.IsConfigured(),
	})
}

// promptContext assembles personalization fields from the activity
// store, best effort: a read failure just means a neutral prompt.
func (s *Server) promptContext(r *http.Request) domain.PromptContext {
	summary, err := s.activity.Summary(r.Context())
	if err != nil {
		s.logger.Warn("activity summary unavailable for prompt context",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("error", err.Error()))
		return domain.PromptContext{}
	}
	return domain.PromptContext{
		DisplayName: summary.Profile.DisplayName,
		StreakDays:  summary.Profile.StreakDays,
		Mood:        summary.LatestMood,
		WeekEntries: summary.WeekEntries,
	}
}

func (s *Server) cooldownWindow() time.Duration {
	if s.cooldown > 0 {
		return s.cooldown
	}
	return throttle.DefaultCooldown
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}
