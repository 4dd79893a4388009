package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/use-agent/webpilot/llm"
	"github.com/use-agent/webpilot/models"
)

const rephrasePrompt = `You convert a text instruction for a web action into a standardized form for another AI to execute.
That AI first searches the DOM of the current page for the element to interact with, then generates code against the retrieved HTML.

Convert the instruction into two parts and answer with a single JSON object:
{"query": "...", "action": "..."}

- "query": a search query a retriever uses to find the right element in the DOM. It must not describe the action. Highlight HTML information (tag kinds, labels, placeholder or button text). The retriever has no visual input, so drop visual cues like colors or screen positions; nearby element text may be used instead.
- "action": the instruction restated as one precise, self-contained command for the code generator.

Examples:
Instruction: Type 'Command R plus' on the search bar with placeholder "Search ..."
Answer: {"query": "input \"Search ...\"", "action": "Click on the input \"Search ...\" and type \"Command R plus\""}
Instruction: Click on 'Installation', next to 'Effective and efficient diffusion'
Answer: {"query": "button \"Installation\" text \"Effective and efficient diffusion\"", "action": "Click on \"Installation\""}
Instruction: Locate the input element labeled "Email Address" and type in "example@example.com"
Answer: {"query": "input \"Email Address\"", "action": "Click on the input \"Email Address\" and type \"example@example.com\""}

Instruction: %s
Answer:`

// Rephrased is the structured form of a navigation instruction: what to
// search the DOM for, and what to do with what is found.
type Rephrased struct {
	Query  string `json:"query"`
	Action string `json:"action"`
}

// Rephraser splits a free-text instruction into a retrieval query and a
// standardized action, with a single LLM call.
type Rephraser struct {
	llm llm.Client
}

// NewRephraser creates a rephraser on the given completion client.
func NewRephraser(client llm.Client) *Rephraser {
	return &Rephraser{llm: client}
}

// Rephrase runs the rephrase call for one instruction.
func (r *Rephraser) Rephrase(ctx context.Context, instruction string) (*Rephrased, error) {
	raw, err := r.llm.Complete(ctx, fmt.Sprintf(rephrasePrompt, instruction))
	if err != nil {
		return nil, err
	}

	var parsed Rephrased
	if err := json.Unmarshal([]byte(llm.ExtractJSONObject(raw)), &parsed); err != nil {
		return nil, models.NewAgentError(
			models.ErrCodeLLMFailure,
			"rephrase response is not a JSON object",
			err,
		)
	}
	parsed.Query = strings.TrimSpace(parsed.Query)
	parsed.Action = strings.TrimSpace(parsed.Action)
	if parsed.Query == "" || parsed.Action == "" {
		return nil, models.NewAgentError(
			models.ErrCodeLLMFailure,
			"rephrase response missing query or action",
			nil,
		)
	}
	return &parsed, nil
}
