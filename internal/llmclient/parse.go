// File: internal/llmclient/parse.go
// Description: Parses raw model text into a typed decision. The model is
// asked for bare JSON but replies sometimes arrive wrapped in markdown fences
// or surrounded by prose; parsing tolerates both. Anything that cannot be
// reduced to actions or a completion signal is ErrModelResponse.
package llmclient

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// decisionPayload is the JSON shape the system prompt asks for.
type decisionPayload struct {
	Thought string           `json:"thought"`
	Actions []schemas.Action `json:"actions"`
	Done    bool             `json:"done"`
	Summary string           `json:"summary"`
}

// ParseDecision turns one raw model reply into a typed decision.
func ParseDecision(raw string) (*schemas.ModelDecision, error) {
	payloadText, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var payload decisionPayload
	if err := json.UnmarshalFromString(payloadText, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", schemas.ErrModelResponse, err)
	}

	if !payload.Done && len(payload.Actions) == 0 {
		return nil, fmt.Errorf("%w: neither actions nor a completion signal", schemas.ErrModelResponse)
	}

	for i, action := range payload.Actions {
		if action.Kind == "" {
			return nil, fmt.Errorf("%w: action %d has no kind", schemas.ErrModelResponse, i)
		}
	}

	// Attach the turn-level thought to the first action so it lands in the
	// audit trail next to what it motivated.
	if payload.Thought != "" && len(payload.Actions) > 0 && payload.Actions[0].Thought == "" {
		payload.Actions[0].Thought = payload.Thought
	}

	return &schemas.ModelDecision{
		Raw:     raw,
		Actions: payload.Actions,
		Done:    payload.Done,
		Summary: payload.Summary,
	}, nil
}

// extractJSON locates the JSON object within a reply, stripping markdown
// fences and any surrounding prose.
func extractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty reply", schemas.ErrModelResponse)
	}

	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		} else {
			text = strings.TrimSpace(rest)
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object found", schemas.ErrModelResponse)
	}
	return text[start : end+1], nil
}
