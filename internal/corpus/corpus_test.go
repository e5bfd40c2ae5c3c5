package corpus

import (
	"math/rand/v2"
	"testing"

	"github.com/prodyapp/bodhi/internal/domain"
)

func TestValidate(t *testing.T) {
	t.Run("builtin corpus is valid", func(t *testing.T) {
		if err := New().Validate(); err != nil {
			t.Fatalf("Validate() error = %v, want nil", err)
		}
	})

	t.Run("missing kind fails", func(t *testing.T) {
		c := New(WithEntries(map[domain.PromptKind][]domain.WisdomResult{
			domain.KindDailyThought: {{Text: "only one"}},
		}))
		if err := c.Validate(); err == nil {
			t.Fatalf("Validate() error = nil, want error for empty kinds")
		} else if domain.KindOf(err) != domain.ErrKindConfig {
			t.Errorf("KindOf(err) = %v, want %v", domain.KindOf(err), domain.ErrKindConfig)
		}
	})
}

func TestPick(t *testing.T) {
	t.Run("deterministic with seeded rand", func(t *testing.T) {
		a := New(WithRand(rand.New(rand.NewPCG(7, 7))))
		b := New(WithRand(rand.New(rand.NewPCG(7, 7))))
		for i := 0; i < 20; i++ {
			got, want := a.Pick(domain.KindDailyThought), b.Pick(domain.KindDailyThought)
			if got.Text != want.Text {
				t.Fatalf("pick %d diverged: %q vs %q", i, got.Text, want.Text)
			}
		}
	})

	t.Run("never returns generated results", func(t *testing.T) {
		c := New(WithRand(rand.New(rand.NewPCG(1, 2))))
		for _, kind := range domain.Kinds() {
			for i := 0; i < c.Size(kind); i++ {
				if res := c.Pick(kind); res.Generated {
					t.Fatalf("Pick(%s) returned Generated=true, corpus entries must be canned", kind)
				}
			}
		}
	})

	t.Run("unknown kind falls back to daily pool", func(t *testing.T) {
		c := New(WithRand(rand.New(rand.NewPCG(3, 4))))
		res := c.Pick(domain.PromptKind("unknown"))
		if res.Text == "" {
			t.Fatalf("Pick(unknown) returned empty result, want a daily-thought entry")
		}
	})

	t.Run("daily thoughts carry explanations", func(t *testing.T) {
		c := New(WithRand(rand.New(rand.NewPCG(5, 6))))
		res := c.Pick(domain.KindDailyThought)
		if res.Explanation == "" {
			t.Errorf("Pick(daily_thought).Explanation is empty, want commentary text")
		}
	})
}
