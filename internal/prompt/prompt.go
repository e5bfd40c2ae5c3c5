// Package prompt renders generation requests for each wisdom kind and parses
// model output back into wisdom results.
package prompt

import (
	"fmt"
	"strings"

	"github.com/prodyapp/bodhi/internal/domain"
	"github.com/prodyapp/bodhi/internal/provider"
)

const systemPrompt = `You are a calm, insightful teacher writing in the spirit of Buddhist practice.
You write for a productivity app that helps people focus, journal, and build habits.
Speak plainly and warmly. Never moralize, never mention being an AI, and never use emoji.
Keep the wisdom itself to one or two sentences.`

const (
	dailyThoughtInstruction = `Write today's short thought: one grounded observation about attention,
impermanence, or beginning again, phrased for someone about to start their day.

Return a strict JSON object: {"wisdom":"...","explanation":"..."}
The explanation is one sentence unpacking the thought in everyday language.`

	journalPromptInstruction = `Write one reflective journaling question. It should be open, concrete,
and answerable in a few sentences, drawing on mindfulness practice.

Return a strict JSON object: {"wisdom":"...","explanation":"..."}
The wisdom field holds the question; the explanation says what answering it builds.`

	encouragementInstruction = `Write one short encouragement for someone in the middle of their practice.
Acknowledge effort without flattery and point back to the present moment.

Return a strict JSON object: {"wisdom":"...","explanation":"..."}
The explanation is one sentence on why the encouragement holds.`
)

const (
	defaultModel           = "gpt-4o-mini"
	defaultMaxPromptTokens = 600
	// defaultCompletionTokens bounds the response; wisdom payloads are small.
	defaultCompletionTokens = 300
)

// BuilderOption configures the builder.
type BuilderOption func(*Builder)

// WithModel sets the model the token budget is counted against.
func WithModel(model string) BuilderOption {
	return func(b *Builder) {
		b.model = model
	}
}

// WithMaxPromptTokens sets the prompt token budget.
func WithMaxPromptTokens(n int) BuilderOption {
	return func(b *Builder) {
		b.maxPromptTokens = n
	}
}

// WithCompletionTokens caps the model response length.
func WithCompletionTokens(n int) BuilderOption {
	return func(b *Builder) {
		b.completionTokens = n
	}
}

// Builder renders generation requests. Personalization lines are dropped,
// least important first, when the rendered prompt exceeds the token budget;
// the kind instruction itself is never trimmed.
type Builder struct {
	model            string
	maxPromptTokens  int
	completionTokens int
	counter          *TokenCounter
}

// NewBuilder creates a prompt builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		model:            defaultModel,
		maxPromptTokens:  defaultMaxPromptTokens,
		completionTokens: defaultCompletionTokens,
		counter:          NewTokenCounter(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the request for a kind with the given personalization.
func (b *Builder) Build(kind domain.PromptKind, pctx domain.PromptContext) *provider.Request {
	instruction := instructionFor(kind)
	lines := contextLines(pctx)

	rendered := render(instruction, lines)
	for len(lines) > 0 {
		n, _ := b.counter.Count(b.model, systemPrompt+rendered)
		if n <= b.maxPromptTokens {
			break
		}
		lines = lines[:len(lines)-1]
		rendered = render(instruction, lines)
	}

	return &provider.Request{
		System:    systemPrompt,
		Prompt:    rendered,
		MaxTokens: b.completionTokens,
	}
}

func instructionFor(kind domain.PromptKind) string {
	switch kind {
	case domain.KindJournalPrompt:
		return journalPromptInstruction
	case domain.KindEncouragement:
		return encouragementInstruction
	default:
		return dailyThoughtInstruction
	}
}

// contextLines returns personalization lines ordered most important first, so
// budget trimming drops from the tail.
func contextLines(pctx domain.PromptContext) []string {
	var lines []string
	if pctx.StreakDays > 0 {
		lines = append(lines, fmt.Sprintf("They are on a %d-day practice streak.", pctx.StreakDays))
	}
	if pctx.Mood != "" {
		lines = append(lines, fmt.Sprintf("Their latest logged mood is %q.", pctx.Mood))
	}
	if pctx.WeekEntries > 0 {
		lines = append(lines, fmt.Sprintf("They wrote %d journal entries this week.", pctx.WeekEntries))
	}
	if pctx.DisplayName != "" {
		lines = append(lines, fmt.Sprintf("You may address them as %s.", pctx.DisplayName))
	}
	return lines
}

func render(instruction string, lines []string) string {
	if len(lines) == 0 {
		return instruction
	}
	var sb strings.Builder
	sb.WriteString("About the person you are writing for:\n")
	for _, line := range lines {
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(instruction)
	return sb.String()
}
