// Package agent runs multi-step objectives: a planner LLM observes the page,
// picks an engine and an instruction, the dispatcher executes it, and the
// loop repeats until the planner declares the objective complete or a budget
// runs out.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/driver"
	"github.com/use-agent/webpilot/engine"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/simhash"
)

// maxObservedChars caps the condensed page text shown to the planner.
const maxObservedChars = 3000

// stuckBits is the simhash distance under which two snapshots count as the
// same page for stuck detection.
const stuckBits = 3

// Agent drives one browser session toward objectives.
type Agent struct {
	driver     driver.Driver
	dispatcher *engine.Dispatcher
	planner    Planner
	maxSteps   int
	memWindow  int
	stuckAfter int
}

// New creates an agent on a driver and its engine dispatcher.
func New(drv driver.Driver, dispatcher *engine.Dispatcher, planner Planner, cfg config.AgentConfig) *Agent {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}
	stuckAfter := cfg.StuckThreshold
	if stuckAfter <= 0 {
		stuckAfter = 3
	}
	return &Agent{
		driver:     drv,
		dispatcher: dispatcher,
		planner:    planner,
		maxSteps:   maxSteps,
		memWindow:  cfg.MemoryWindow,
		stuckAfter: stuckAfter,
	}
}

// Get navigates the session to url, the usual first step of an objective.
func (a *Agent) Get(ctx context.Context, url string) error {
	return a.driver.Navigate(ctx, url)
}

// RunResult is the outcome of one objective run. Steps always holds the
// trajectory so far, including for failed runs.
type RunResult struct {
	Output string                  `json:"output"`
	Steps  []models.TrajectoryStep `json:"steps"`
}

// Run loops observe → plan → act until the planner returns COMPLETE, the
// step budget is exhausted (OBJECTIVE_NOT_REACHED), or the page stops
// changing under repeated identical decisions (AGENT_STUCK).
func (a *Agent) Run(ctx context.Context, objective string) (*RunResult, error) {
	mem := newShortTermMemory(a.memWindow)
	result := &RunResult{}

	var (
		prevDecision *Decision
		prevPrint    uint64
		seen         int
	)

	for step := 1; step <= a.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// ── 1. Observe ──────────────────────────────────────────────
		obs, print, err := a.observe(ctx, objective, mem)
		if err != nil {
			return result, err
		}

		// ── 2. Plan ─────────────────────────────────────────────────
		decision, err := a.planner.NextStep(ctx, obs)
		if err != nil {
			return result, err
		}
		slog.Info("planner decision",
			"step", step,
			"engine", decision.Engine,
			"instruction", decision.Instruction,
		)

		if decision.Engine == CompleteEngine {
			result.Output = decision.Instruction
			slog.Info("objective complete", "steps", len(result.Steps))
			return result, nil
		}

		// ── 3. Stuck check ──────────────────────────────────────────
		// An identical decision on an unchanged page means the action is
		// not taking effect; stop before burning the rest of the budget.
		if prevDecision != nil &&
			decision.Engine == prevDecision.Engine &&
			decision.Instruction == prevDecision.Instruction &&
			simhash.Similar(print, prevPrint, stuckBits) {
			seen++
		} else {
			seen = 1
		}
		prevDecision, prevPrint = decision, print
		if seen >= a.stuckAfter {
			return result, models.NewAgentError(
				models.ErrCodeAgentStuck,
				fmt.Sprintf("page unchanged after %d identical steps (%s)", seen, decision.Instruction),
				nil,
			)
		}

		// ── 4. Act ──────────────────────────────────────────────────
		record := a.act(ctx, decision)
		result.Steps = append(result.Steps, record)
		mem.add(record)
	}

	return result, models.NewAgentError(
		models.ErrCodeObjectiveNotReached,
		fmt.Sprintf("objective not reached after %d steps", a.maxSteps),
		nil,
	)
}

// observe snapshots the page and assembles the planner's view of it, plus
// the DOM fingerprint used for stuck detection.
func (a *Agent) observe(ctx context.Context, objective string, mem *shortTermMemory) (Observation, uint64, error) {
	html, err := a.driver.Snapshot(ctx)
	if err != nil {
		return Observation{}, 0, err
	}

	// URL, title and tabs are best effort; the snapshot is the one
	// observation the planner cannot do without.
	url, _ := a.driver.CurrentURL(ctx)
	title, _ := a.driver.Title(ctx)
	tabs, focused, _ := a.driver.Tabs(ctx)

	return Observation{
		Objective: objective,
		URL:       url,
		Title:     title,
		Content:   condense(html, maxObservedChars),
		Tabs:      tabs,
		Focused:   focused,
		History:   mem.render(),
	}, simhash.FingerprintDOM(html), nil
}

// act dispatches one decision and records it as a trajectory step. Engine
// failures mark the step failed instead of ending the run; the planner sees
// the error in its history and can try something else.
func (a *Agent) act(ctx context.Context, decision *Decision) models.TrajectoryStep {
	actionType := models.ActionTypeNavigation
	if decision.Engine == engine.ExtractionName {
		actionType = models.ActionTypeExtraction
	}

	start := time.Now()
	res, err := a.dispatcher.Execute(ctx, decision.Engine, decision.Instruction)

	record := models.TrajectoryStep{
		StepID:      uuid.NewString(),
		Engine:      decision.Engine,
		ActionType:  actionType,
		Instruction: decision.Instruction,
		Thoughts:    decision.Thoughts,
		Status:      models.ActionStatusCompleted,
		DurationMs:  time.Since(start).Milliseconds(),
	}
	if res != nil {
		if res.Instruction != "" {
			record.Instruction = res.Instruction
		}
		record.Code = res.Code
		record.Output = res.Output
	}
	if err != nil {
		record.Status = models.ActionStatusFailed
		record.Error = err.Error()
		slog.Warn("agent step failed",
			"engine", decision.Engine,
			"instruction", decision.Instruction,
			"error", err,
		)
	}

	if tabs, focused, terr := a.driver.Tabs(ctx); terr == nil {
		record.Tabs = tabs
		record.FocusedTab = focused
	}
	return record
}

// condense reduces a DOM snapshot to whitespace-normalized visible text.
func condense(rawHTML string, limit int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return clamp(strings.Join(strings.Fields(rawHTML), " "), limit)
	}
	doc.Find("script, style, noscript, svg").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return clamp(strings.Join(strings.Fields(text), " "), limit)
}

func clamp(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
