// File: internal/llmclient/prompt.go
// Description: Prompt assembly for the model boundary. The system prompt
// fixes the action vocabulary and the JSON reply contract; per-turn feedback
// tells the model what happened to each action it requested.
package llmclient

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

const systemPrompt = `You are operating a computer through a screenshot-driven control loop.

Each turn you receive a screenshot of the screen. Reply with a single JSON object, nothing else:

{
  "thought": "brief reasoning about the current state",
  "actions": [ ...one or more action objects... ],
  "done": false,
  "summary": ""
}

Action objects:
  {"action": "mouse_move", "coordinate": {"x": X, "y": Y}}
  {"action": "click", "coordinate": {"x": X, "y": Y}, "button": "left|right|middle", "click_count": 1}
  {"action": "drag", "coordinate": {"x": X, "y": Y}}            // drags from the current cursor position
  {"action": "scroll", "coordinate": {"x": X, "y": Y}, "delta_y": 3}  // positive delta_y scrolls down
  {"action": "type", "text": "literal text to type"}
  {"action": "key", "text": "Return"}                           // xdotool-style chords, e.g. "ctrl+shift+t"
  {"action": "screenshot"}
  {"action": "cursor_position"}
  {"action": "wait", "duration_ms": 500}

Rules:
- Coordinates are pixels on the screenshot you were shown, origin top-left.
- Actions run strictly in order; if one fails the rest of the batch is skipped.
- Prefer small batches and verify the result on the next screenshot.
- When the objective is achieved, reply with "done": true, an empty actions list, and a one-line "summary".`

// observationPrompt describes the current frame and the objective.
func observationPrompt(req schemas.DecisionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", req.Objective)
	if req.Observation != nil {
		fmt.Fprintf(&b, "Screenshot grid: %dx%d.\n",
			req.Observation.Grid.Width, req.Observation.Grid.Height)
	}
	b.WriteString("Decide the next actions.")
	return b.String()
}

// turnFeedback renders one past turn's outcomes for the conversation replay.
func turnFeedback(turn schemas.Turn) string {
	if len(turn.Results) == 0 {
		return fmt.Sprintf("Turn %d: no actions executed.", turn.Index)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d results:\n", turn.Index)
	for _, result := range turn.Results {
		fmt.Fprintf(&b, "- %s: %s", result.Action.Kind, result.Status)
		if result.Failure != schemas.FailureNone {
			fmt.Fprintf(&b, " (%s: %s)", result.Failure, result.Error)
		}
		if result.Output != "" {
			fmt.Fprintf(&b, " -> %s", result.Output)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
