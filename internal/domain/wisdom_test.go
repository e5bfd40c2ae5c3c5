package domain

import (
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PromptKind
		wantErr bool
	}{
		{name: "empty defaults to daily thought", input: "", want: KindDailyThought},
		{name: "daily thought", input: "daily_thought", want: KindDailyThought},
		{name: "journal prompt", input: "journal_prompt", want: KindJournalPrompt},
		{name: "encouragement", input: "encouragement", want: KindEncouragement},
		{name: "mixed case with spaces", input: "  Daily_Thought ", want: KindDailyThought},
		{name: "unknown kind", input: "horoscope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlotKey(t *testing.T) {
	if got := KindDailyThought.SlotKey(); got != "wisdom:daily_thought" {
		t.Errorf("SlotKey() = %q, want %q", got, "wisdom:daily_thought")
	}
}

func TestOutcomeConstructors(t *testing.T) {
	res := WisdomResult{Text: "Be here now.", Explanation: "Presence over planning.", Generated: true}

	t.Run("success", func(t *testing.T) {
		o := SuccessOutcome(res, "openai", false)
		if o.Status != OutcomeSuccess {
			t.Errorf("Status = %v, want %v", o.Status, OutcomeSuccess)
		}
		if !o.IsSuccess() || o.IsFallback() {
			t.Errorf("IsSuccess() = %v, IsFallback() = %v, want true, false", o.IsSuccess(), o.IsFallback())
		}
		if o.Result == nil || o.Result.Text != res.Text {
			t.Errorf("Result = %+v, want text %q", o.Result, res.Text)
		}
		if o.Provider != "openai" {
			t.Errorf("Provider = %q, want %q", o.Provider, "openai")
		}
		if o.ID == "" {
			t.Errorf("ID is empty, want a generated id")
		}
	})

	t.Run("cache hit keeps generated flag", func(t *testing.T) {
		o := SuccessOutcome(res, "", true)
		if !o.FromCache {
			t.Errorf("FromCache = false, want true")
		}
		if !o.Result.Generated {
			t.Errorf("Result.Generated = false, want true")
		}
	})

	t.Run("fallback", func(t *testing.T) {
		o := FallbackOutcome(WisdomResult{Text: "Patience."}, ErrKindRateLimited)
		if o.Status != OutcomeFallback {
			t.Errorf("Status = %v, want %v", o.Status, OutcomeFallback)
		}
		if o.Reason != ErrKindRateLimited {
			t.Errorf("Reason = %v, want %v", o.Reason, ErrKindRateLimited)
		}
		if o.Result == nil || o.Result.Generated {
			t.Errorf("fallback result must be present and not generated, got %+v", o.Result)
		}
	})

	t.Run("error", func(t *testing.T) {
		o := ErrorOutcome(ErrKindConfig)
		if o.Status != OutcomeError {
			t.Errorf("Status = %v, want %v", o.Status, OutcomeError)
		}
		if o.Result != nil {
			t.Errorf("Result = %+v, want nil", o.Result)
		}
	})
}
