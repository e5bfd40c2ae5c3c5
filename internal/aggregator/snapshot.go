package aggregator

import (
	"time"

	"github.com/prodyapp/bodhi/internal/domain"
)

// WisdomView is the snapshot projection of the latest wisdom outcome.
type WisdomView struct {
	Kind        domain.PromptKind    `json:"kind"`
	Text        string               `json:"text"`
	Explanation string               `json:"explanation,omitempty"`
	Generated   bool                 `json:"generated"`
	FromCache   bool                 `json:"from_cache"`
	Provider    string               `json:"provider,omitempty"`
	Status      domain.OutcomeStatus `json:"status"`
	Reason      domain.ErrorKind     `json:"reason,omitempty"`
	At          time.Time            `json:"at"`
}

// Snapshot is one fully-populated home state. Every emission is
// recomputed from the latest value of every source; a snapshot never
// mixes fields from different points in time.
type Snapshot struct {
	Revision     uint64      `json:"revision"`
	DisplayName  string      `json:"display_name,omitempty"`
	StreakDays   int         `json:"streak_days"`
	WeekEntries  int         `json:"week_entries"`
	TodayEntries int         `json:"today_entries"`
	Mood         string      `json:"mood,omitempty"`
	Wisdom       *WisdomView `json:"wisdom,omitempty"`
	CanRefresh   bool        `json:"can_refresh"`
	RefreshInMS  int64       `json:"refresh_in_ms,omitempty"`
	Loading      bool        `json:"loading"`
	LoadError    bool        `json:"load_error"`
	At           time.Time   `json:"at"`
}

func viewFromOutcome(kind domain.PromptKind, outcome domain.Outcome) *WisdomView {
	view := &WisdomView{
		Kind:      kind,
		Status:    outcome.Status,
		Reason:    outcome.Reason,
		Provider:  outcome.Provider,
		FromCache: outcome.FromCache,
		At:        outcome.At,
	}
	if outcome.Result != nil {
		view.Text = outcome.Result.Text
		view.Explanation = outcome.Result.Explanation
		view.Generated = outcome.Result.Generated
	}
	return view
}
