package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/webpilot/models"
)

// ExecuteProgram runs an action program step by step. Each step gets its own
// deadline. The first failing step aborts the rest of the program.
func (s *Session) ExecuteProgram(ctx context.Context, steps []models.ProgramStep) error {
	s.touch()

	for i, step := range steps {
		if err := s.executeStep(ctx, step); err != nil {
			s.recordFailure()
			return models.NewAgentError(
				models.ErrCodeActionFailed,
				fmt.Sprintf("step %d (%s) failed after %d completed: %v", i+1, step.Type, i, err),
				err,
			)
		}
	}

	s.recordSuccess()
	return nil
}

// executeStep dispatches a single step under its own timeout. wait and
// wait_for steps extend the deadline through their milliseconds field.
func (s *Session) executeStep(ctx context.Context, step models.ProgramStep) error {
	timeout := s.stepTimeout
	if step.Milliseconds > 0 && (step.Type == models.StepWait || step.Type == models.StepWaitFor) {
		extra := time.Duration(step.Milliseconds) * time.Millisecond
		if extra+time.Second > timeout {
			timeout = extra + time.Second
		}
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.currentPage().Context(stepCtx)

	switch step.Type {
	case models.StepClick:
		return execClick(p, step)
	case models.StepTypeText:
		return execTypeText(p, step)
	case models.StepPress:
		return execPress(p, step)
	case models.StepHover:
		return execHover(p, step)
	case models.StepSelect:
		return execSelect(p, step)
	case models.StepScroll:
		return execScroll(p, step)
	case models.StepWait:
		return execWait(stepCtx, step)
	case models.StepWaitFor:
		return execWaitFor(p, step)
	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}
}

func execClick(p *rod.Page, step models.ProgramStep) error {
	el, err := p.Element(step.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", step.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// execTypeText replaces the element's current value with the step text.
func execTypeText(p *rod.Page, step models.ProgramStep) error {
	el, err := p.Element(step.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", step.Selector, err)
	}
	// Select the existing value so typing replaces rather than appends.
	_ = el.SelectAllText()
	return el.Input(step.Text)
}

// execPress presses a named key, focusing the selector first when given.
func execPress(p *rod.Page, step models.ProgramStep) error {
	key, err := keyFromName(step.Key)
	if err != nil {
		return err
	}

	if step.Selector != "" {
		el, elErr := p.Element(step.Selector)
		if elErr != nil {
			return fmt.Errorf("element %q not found: %w", step.Selector, elErr)
		}
		return el.Type(key)
	}
	return p.Keyboard.Press(key)
}

func execHover(p *rod.Page, step models.ProgramStep) error {
	el, err := p.Element(step.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", step.Selector, err)
	}
	return el.Hover()
}

// execSelect picks a dropdown option by its visible text.
func execSelect(p *rod.Page, step models.ProgramStep) error {
	el, err := p.Element(step.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", step.Selector, err)
	}
	return el.Select([]string{step.Value}, true, rod.SelectorTypeText)
}

func execScroll(p *rod.Page, step models.ProgramStep) error {
	return p.Mouse.Scroll(0, float64(step.Pixels), 0)
}

func execWait(ctx context.Context, step models.ProgramStep) error {
	if step.Milliseconds <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(step.Milliseconds) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execWaitFor blocks until at least one element matches the selector, or the
// step deadline expires.
func execWaitFor(p *rod.Page, step models.ProgramStep) error {
	return p.WaitElementsMoreThan(step.Selector, 0)
}

// keyFromName maps a key name from an action program onto a Rod input key.
// Single printable characters pass through as-is.
func keyFromName(name string) (input.Key, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "enter", "return":
		return input.Enter, nil
	case "tab":
		return input.Tab, nil
	case "escape", "esc":
		return input.Escape, nil
	case "backspace":
		return input.Backspace, nil
	case "delete":
		return input.Delete, nil
	case "arrowup", "up":
		return input.ArrowUp, nil
	case "arrowdown", "down":
		return input.ArrowDown, nil
	case "arrowleft", "left":
		return input.ArrowLeft, nil
	case "arrowright", "right":
		return input.ArrowRight, nil
	case "pageup":
		return input.PageUp, nil
	case "pagedown":
		return input.PageDown, nil
	case "home":
		return input.Home, nil
	case "end":
		return input.End, nil
	case "space", "spacebar":
		return input.Key(' '), nil
	}

	if runes := []rune(strings.TrimSpace(name)); len(runes) == 1 {
		return input.Key(runes[0]), nil
	}
	return 0, fmt.Errorf("unsupported key %q", name)
}
