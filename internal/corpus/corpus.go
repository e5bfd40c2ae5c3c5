// Package corpus holds the pre-authored wisdom served when generation is
// unavailable. Picks are cheap, concurrency-safe, and never fail once the
// corpus has passed startup validation.
package corpus

import (
	"math/rand/v2"
	"sync"

	"github.com/prodyapp/bodhi/internal/domain"
)

// Corpus serves deterministic fallback wisdom per prompt kind.
type Corpus struct {
	mu      sync.Mutex
	entries map[domain.PromptKind][]domain.WisdomResult
	intN    func(n int) int
}

// Option configures a Corpus.
type Option func(*Corpus)

// WithRand substitutes the random source. Used by tests to make picks
// deterministic.
func WithRand(r *rand.Rand) Option {
	return func(c *Corpus) {
		c.intN = r.IntN
	}
}

// WithEntries replaces the built-in entry set.
func WithEntries(entries map[domain.PromptKind][]domain.WisdomResult) Option {
	return func(c *Corpus) {
		c.entries = entries
	}
}

// New builds the corpus with the built-in entries.
func New(opts ...Option) *Corpus {
	c := &Corpus{
		entries: builtinEntries(),
		intN:    rand.IntN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate fails if any known prompt kind has no entries. Called once at
// startup; request paths rely on it having passed.
func (c *Corpus) Validate() error {
	for _, kind := range domain.Kinds() {
		if len(c.entries[kind]) == 0 {
			return domain.ErrConfig("fallback corpus has no entries for kind " + string(kind))
		}
	}
	return nil
}

// Pick returns a random entry for the kind. Unknown kinds fall back to the
// daily-thought pool so a pick always succeeds.
func (c *Corpus) Pick(kind domain.PromptKind) domain.WisdomResult {
	pool := c.entries[kind]
	if len(pool) == 0 {
		pool = c.entries[domain.KindDailyThought]
	}

	c.mu.Lock()
	i := c.intN(len(pool))
	c.mu.Unlock()

	return pool[i]
}

// Size returns the number of entries for a kind.
func (c *Corpus) Size(kind domain.PromptKind) int {
	return len(c.entries[kind])
}

func builtinEntries() map[domain.PromptKind][]domain.WisdomResult {
	return map[domain.PromptKind][]domain.WisdomResult{
		domain.KindDailyThought: {
			{Text: "Peace comes from within. Do not seek it without.", Explanation: "Searching for calm in circumstances keeps it forever out of reach; the search itself is the unrest."},
			{Text: "You only lose what you cling to.", Explanation: "Grasping turns change into suffering. Held loosely, the same change is just weather."},
			{Text: "Drop by drop is the water pot filled.", Explanation: "Small, repeated acts accumulate into character long before any single act looks important."},
			{Text: "The obstacle is the path.", Explanation: "What blocks the plan becomes the practice. Resistance marks exactly where to work."},
			{Text: "No mud, no lotus.", Explanation: "The difficult material of a life is not in the way of growth. It is the soil of it."},
			{Text: "Better than a thousand hollow words is one word that brings peace.", Explanation: "Volume is easy. A single considered sentence can end a conflict that hours of argument feed."},
			{Text: "Let go or be dragged.", Explanation: "What has already changed will move on with or without consent. Release is the only dignified exit."},
			{Text: "When the student is ready the teacher will appear.", Explanation: "Readiness changes what you notice. The lesson was always there; attention was not."},
			{Text: "Nothing is permanent except change.", Explanation: "Expecting things to stay fixed is the quiet error behind most disappointment."},
			{Text: "The quieter you become, the more you can hear.", Explanation: "Inner commentary drowns out most of what a moment offers. Silence is an instrument."},
		},
		domain.KindJournalPrompt: {
			{Text: "What moment today deserved more attention than you gave it?"},
			{Text: "Name one thing you are carrying that is not yours to carry."},
			{Text: "What would today look like if you trusted yourself completely?"},
			{Text: "Describe a small kindness you witnessed or offered recently."},
			{Text: "What are you avoiding, and what is the avoidance costing you?"},
			{Text: "Which habit served you well this week, and how did it start?"},
			{Text: "Write about something you changed your mind on, and what changed it."},
			{Text: "What does rest actually look like for you, not in theory but in practice?"},
		},
		domain.KindEncouragement: {
			{Text: "Showing up today counts, even quietly."},
			{Text: "Progress you cannot see is still progress."},
			{Text: "One honest sentence in a journal beats a perfect unwritten page."},
			{Text: "Streaks bend. They do not have to break you."},
			{Text: "You have survived every difficult day so far."},
			{Text: "Begin again. That is the whole practice."},
		},
	}
}
