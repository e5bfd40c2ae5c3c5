package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PromptKind identifies which wisdom surface a request is for. Each kind has
// its own cache slot, prompt template, and fallback pool.
type PromptKind string

const (
	KindDailyThought  PromptKind = "daily_thought"
	KindJournalPrompt PromptKind = "journal_prompt"
	KindEncouragement PromptKind = "encouragement"
)

// Kinds returns all prompt kinds in a stable order.
func Kinds() []PromptKind {
	return []PromptKind{KindDailyThought, KindJournalPrompt, KindEncouragement}
}

// ParseKind normalizes a user-supplied kind string. An empty string maps to
// KindDailyThought so the common consumer path needs no parameter.
func ParseKind(s string) (PromptKind, error) {
	switch PromptKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindDailyThought:
		return KindDailyThought, nil
	case KindJournalPrompt:
		return KindJournalPrompt, nil
	case KindEncouragement:
		return KindEncouragement, nil
	default:
		return "", fmt.Errorf("unknown prompt kind %q", s)
	}
}

// SlotKey returns the cache slot for this kind.
func (k PromptKind) SlotKey() string {
	return "wisdom:" + string(k)
}

// WisdomResult is the displayable unit of wisdom. Generated reports whether
// the text came from a model call; cached results keep the flag of the call
// that produced them, corpus picks always carry false.
type WisdomResult struct {
	Text        string `json:"text"`
	Explanation string `json:"explanation,omitempty"`
	Generated   bool   `json:"generated"`
}

// PromptContext carries the read-only personalization fields a generation may
// use. All fields are optional; absent values render as neutral prompts.
// Nothing in here may be a secret.
type PromptContext struct {
	DisplayName string
	StreakDays  int
	Mood        string
	WeekEntries int
}

// OutcomeStatus tags the three terminal states of a wisdom request.
type OutcomeStatus string

const (
	OutcomeSuccess  OutcomeStatus = "success"
	OutcomeFallback OutcomeStatus = "fallback"
	OutcomeError    OutcomeStatus = "error"
)

// Outcome is what the pipeline resolves every request to. Status is always
// set; Result is present for success and fallback outcomes (the corpus is
// validated non-empty at startup, so the error state is reserved for callers
// composing outcomes outside the pipeline). Reason is set on fallback and
// error outcomes, Provider on fresh generations.
type Outcome struct {
	ID        string        `json:"id"`
	Status    OutcomeStatus `json:"status"`
	Result    *WisdomResult `json:"result,omitempty"`
	Reason    ErrorKind     `json:"reason,omitempty"`
	Provider  string        `json:"provider,omitempty"`
	FromCache bool          `json:"from_cache"`
	At        time.Time     `json:"at"`
}

// SuccessOutcome builds a success outcome. provider is empty for cache hits.
func SuccessOutcome(result WisdomResult, provider string, fromCache bool) Outcome {
	return Outcome{
		ID:        uuid.New().String(),
		Status:    OutcomeSuccess,
		Result:    &result,
		Provider:  provider,
		FromCache: fromCache,
		At:        time.Now().UTC(),
	}
}

// FallbackOutcome builds a fallback outcome carrying a corpus result and the
// reason generation was skipped or failed.
func FallbackOutcome(result WisdomResult, reason ErrorKind) Outcome {
	return Outcome{
		ID:     uuid.New().String(),
		Status: OutcomeFallback,
		Result: &result,
		Reason: reason,
		At:     time.Now().UTC(),
	}
}

// ErrorOutcome builds a terminal error outcome. The pipeline itself never
// returns one; it exists for surfaces that must represent a missing result.
func ErrorOutcome(reason ErrorKind) Outcome {
	return Outcome{
		ID:     uuid.New().String(),
		Status: OutcomeError,
		Reason: reason,
		At:     time.Now().UTC(),
	}
}

// IsSuccess reports whether the outcome carries a non-fallback result.
func (o Outcome) IsSuccess() bool { return o.Status == OutcomeSuccess }

// IsFallback reports whether the outcome was served from the corpus.
func (o Outcome) IsFallback() bool { return o.Status == OutcomeFallback }
