package prompt

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/prodyapp/bodhi/internal/domain"
)

type wisdomPayload struct {
	Wisdom      string `json:"wisdom"`
	Explanation string `json:"explanation"`
}

// ParseResponse extracts a wisdom result from raw model output. Strict JSON is
// tried first, then a fenced code block, then the first balanced JSON object
// embedded in surrounding prose. Output that is not JSON at all becomes the
// wisdom line itself; structured output with no usable wisdom is an error.
func ParseResponse(text string) (domain.WisdomResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.WisdomResult{}, errors.New("empty model response")
	}

	if result, ok := tryDecode(trimmed); ok {
		return result, nil
	}

	if inner := fencedBlock(trimmed); inner != "" {
		if result, ok := tryDecode(inner); ok {
			return result, nil
		}
	}

	// Scan for a balanced JSON object embedded in prose.
	if idx := strings.Index(trimmed, "{"); idx >= 0 {
		rest := trimmed[idx:]
		depth := 0
		for i, ch := range rest {
			switch ch {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					if result, ok := tryDecode(rest[:i+1]); ok {
						return result, nil
					}
				}
			}
		}
	}

	if strings.HasPrefix(trimmed, "{") || strings.Contains(trimmed, "```") {
		return domain.WisdomResult{}, errors.New("no usable wisdom in model response")
	}

	return domain.WisdomResult{
		Text:      strings.Trim(trimmed, `"`),
		Generated: true,
	}, nil
}

func tryDecode(candidate string) (domain.WisdomResult, bool) {
	var payload wisdomPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return domain.WisdomResult{}, false
	}
	wisdom := strings.TrimSpace(payload.Wisdom)
	if wisdom == "" {
		return domain.WisdomResult{}, false
	}
	return domain.WisdomResult{
		Text:        wisdom,
		Explanation: strings.TrimSpace(payload.Explanation),
		Generated:   true,
	}, true
}

// fencedBlock returns the contents of the first markdown code fence, with any
// language tag on the opening line skipped.
func fencedBlock(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
