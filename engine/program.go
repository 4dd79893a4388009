package engine

import (
	"encoding/json"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/use-agent/webpilot/llm"
	"github.com/use-agent/webpilot/models"
)

// Sanitization bounds. Generated programs are untrusted input, so
// everything is clamped before it reaches a browser.
const (
	maxProgramSteps = 12
	maxStepMillis   = 60000
	maxScrollPixels = 3000
	maxTypedText    = 320
)

// ParseProgram extracts a JSON action program from an LLM reply. Accepts a
// bare array of steps or an object wrapping it under "steps".
func ParseProgram(raw string) ([]models.ProgramStep, error) {
	var steps []models.ProgramStep
	if err := json.Unmarshal([]byte(llm.ExtractJSONArray(raw)), &steps); err == nil {
		return steps, nil
	}

	var wrapped struct {
		Steps []models.ProgramStep `json:"steps"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSONObject(raw)), &wrapped); err == nil && wrapped.Steps != nil {
		return wrapped.Steps, nil
	}

	return nil, models.NewAgentError(
		models.ErrCodeLLMFailure,
		"reply does not contain a JSON action program",
		nil,
	)
}

// SanitizeProgram validates and clamps a parsed program. Steps with unknown
// types, missing required fields, or selectors that do not compile are
// dropped; consecutive duplicate steps collapse into one; at most
// maxProgramSteps survive. An empty result is a typed error.
func SanitizeProgram(steps []models.ProgramStep) ([]models.ProgramStep, error) {
	cleaned := make([]models.ProgramStep, 0, len(steps))

	for _, step := range steps {
		step.Type = models.StepType(strings.ToLower(strings.TrimSpace(string(step.Type))))
		step.Selector = strings.TrimSpace(step.Selector)
		step.Key = strings.TrimSpace(step.Key)
		step.Value = strings.TrimSpace(step.Value)
		step.Text = clampText(step.Text, maxTypedText)

		if step.Milliseconds < 0 {
			step.Milliseconds = 0
		}
		if step.Milliseconds > maxStepMillis {
			step.Milliseconds = maxStepMillis
		}
		if step.Pixels > maxScrollPixels {
			step.Pixels = maxScrollPixels
		}
		if step.Pixels < -maxScrollPixels {
			step.Pixels = -maxScrollPixels
		}

		if !stepValid(step) {
			continue
		}
		if len(cleaned) > 0 && step == cleaned[len(cleaned)-1] {
			continue
		}

		cleaned = append(cleaned, step)
		if len(cleaned) >= maxProgramSteps {
			break
		}
	}

	if len(cleaned) == 0 {
		return nil, models.NewAgentError(
			models.ErrCodeLLMFailure,
			"action program has no executable steps",
			nil,
		)
	}
	return cleaned, nil
}

// stepValid checks the required fields for each step type.
func stepValid(step models.ProgramStep) bool {
	switch step.Type {
	case models.StepClick, models.StepHover, models.StepWaitFor:
		return selectorValid(step.Selector)
	case models.StepTypeText:
		return selectorValid(step.Selector) && step.Text != ""
	case models.StepPress:
		if step.Key == "" {
			return false
		}
		return step.Selector == "" || selectorValid(step.Selector)
	case models.StepSelect:
		return selectorValid(step.Selector) && step.Value != ""
	case models.StepScroll:
		return step.Pixels != 0
	case models.StepWait:
		return step.Milliseconds > 0
	default:
		return false
	}
}

// selectorValid compiles the selector with cascadia; selectors that do not
// parse are dropped here instead of failing mid-program in the browser.
func selectorValid(sel string) bool {
	if sel == "" {
		return false
	}
	_, err := cascadia.ParseGroup(sel)
	return err == nil
}

func clampText(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return strings.TrimSpace(value[:max])
}
