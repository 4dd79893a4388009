package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/use-agent/webpilot/llm"
	"github.com/use-agent/webpilot/models"
)

// CompleteEngine is the planner's pseudo-engine name signalling the
// objective is accomplished. The decision's instruction then carries the
// final answer.
const CompleteEngine = "COMPLETE"

const plannerPrompt = `You drive a web browser toward an objective, one step at a time.

Objective: %s

Current page:
URL: %s
Title: %s
Tabs:
%s

Page content (condensed):
%s

Previous steps:
%s

Decide the single next step and answer with one JSON object:
{"thoughts": "...", "engine": "...", "instruction": "..."}

Engines:
- "Navigation Engine": interact with the page. The instruction is one atomic action, e.g. Click on the "Sign in" button.
- "Navigation Controls": deterministic browser commands. The instruction is exactly one of SCROLL_DOWN, SCROLL_UP, WAIT, BACK, SCAN, MAXIMIZE_WINDOW, SWITCH_TAB <n>.
- "Extraction Engine": answer a question from the current page without touching it. The instruction is the question.
- "COMPLETE": the objective is accomplished. Put the final answer, or a short confirmation for action objectives, in "instruction".

Rules:
- One atomic step per answer. Never combine actions.
- Do not repeat a step that already succeeded.
- If the page lacks what you need, scroll or navigate before extracting.
- When the previous steps already contain the answer, return COMPLETE.`

// Observation is the state the planner decides from.
type Observation struct {
	Objective string
	URL       string
	Title     string
	Content   string
	Tabs      []models.Tab
	Focused   int
	History   string
}

// Decision is one planner step: which engine to run and with what
// instruction. Engine CompleteEngine ends the run.
type Decision struct {
	Thoughts    string `json:"thoughts"`
	Engine      string `json:"engine"`
	Instruction string `json:"instruction"`
}

// Planner chooses the next step toward the objective.
type Planner interface {
	NextStep(ctx context.Context, obs Observation) (*Decision, error)
}

type llmPlanner struct {
	llm llm.Client
}

// NewPlanner creates the LLM-backed planner.
func NewPlanner(client llm.Client) Planner {
	return &llmPlanner{llm: client}
}

func (p *llmPlanner) NextStep(ctx context.Context, obs Observation) (*Decision, error) {
	raw, err := p.llm.Complete(ctx, fmt.Sprintf(plannerPrompt,
		obs.Objective,
		obs.URL,
		obs.Title,
		renderTabs(obs.Tabs, obs.Focused),
		obs.Content,
		obs.History,
	))
	if err != nil {
		return nil, err
	}

	var decision Decision
	if err := json.Unmarshal([]byte(llm.ExtractJSONObject(raw)), &decision); err != nil {
		return nil, models.NewAgentError(
			models.ErrCodeLLMFailure,
			"planner response is not a JSON object",
			err,
		)
	}
	decision.Engine = strings.TrimSpace(decision.Engine)
	decision.Instruction = strings.TrimSpace(decision.Instruction)
	if decision.Engine == "" {
		return nil, models.NewAgentError(
			models.ErrCodeLLMFailure,
			"planner response missing engine",
			nil,
		)
	}
	if decision.Engine != CompleteEngine && decision.Instruction == "" {
		return nil, models.NewAgentError(
			models.ErrCodeLLMFailure,
			"planner response missing instruction",
			nil,
		)
	}
	return &decision, nil
}

func renderTabs(tabs []models.Tab, focused int) string {
	if len(tabs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, tab := range tabs {
		marker := " "
		if i == focused {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s [%d] %s (%s)\n", marker, i, tab.Title, tab.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}
