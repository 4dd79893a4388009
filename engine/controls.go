package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/webpilot/driver"
	"github.com/use-agent/webpilot/models"
)

// Controls executes deterministic keyword commands against the driver. No
// LLM is involved: the planner (or the API caller) names the command in the
// instruction itself.
type Controls struct {
	driver driver.Driver
	delay  time.Duration
}

// NewControls creates the controls engine. delay is the pause WAIT performs.
func NewControls(drv driver.Driver, delay time.Duration) *Controls {
	return &Controls{driver: drv, delay: delay}
}

// Name implements Engine.
func (c *Controls) Name() string {
	return ControlsName
}

// ExecuteInstruction matches the instruction against the known commands, in
// fixed order, and runs the first match. SCAN switches the driver to
// full-page snapshots; BACK and SWITCH_TAB switch it back to viewport-only.
func (c *Controls) ExecuteInstruction(ctx context.Context, instruction string) (*models.ActionResult, error) {
	var code string
	var err error

	switch {
	case strings.Contains(instruction, "SCROLL_DOWN"):
		code = "driver.ScrollDown()"
		err = c.driver.ScrollDown(ctx)
	case strings.Contains(instruction, "SCROLL_UP"):
		code = "driver.ScrollUp()"
		err = c.driver.ScrollUp(ctx)
	case strings.Contains(instruction, "WAIT"):
		code = fmt.Sprintf("driver.Wait(%s)", c.delay)
		err = wait(ctx, c.delay)
	case strings.Contains(instruction, "BACK"):
		code = "driver.Back()"
		if err = c.driver.Back(ctx); err == nil {
			c.driver.SetFullPage(false)
		}
	case strings.Contains(instruction, "SCAN"):
		code = "driver.ScanPage()"
		if err = c.driver.ScanPage(ctx); err == nil {
			c.driver.SetFullPage(true)
		}
	case strings.Contains(instruction, "MAXIMIZE_WINDOW"):
		code = "driver.MaximizeWindow()"
		err = c.driver.MaximizeWindow(ctx)
	case strings.Contains(instruction, "SWITCH_TAB"):
		index, parseErr := parseTabIndex(instruction)
		if parseErr != nil {
			return nil, parseErr
		}
		code = fmt.Sprintf("driver.SwitchTab(%d)", index)
		if err = c.driver.SwitchTab(ctx, index); err == nil {
			c.driver.SetFullPage(false)
		}
	default:
		return nil, models.NewAgentError(
			models.ErrCodeUnknownControl,
			fmt.Sprintf("unknown control instruction %q", instruction),
			nil,
		)
	}

	result := &models.ActionResult{
		Instruction: instruction,
		Code:        code,
		Success:     err == nil,
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// parseTabIndex extracts the integer argument after SWITCH_TAB.
func parseTabIndex(instruction string) (int, error) {
	rest := instruction[strings.Index(instruction, "SWITCH_TAB")+len("SWITCH_TAB"):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, models.NewAgentError(
			models.ErrCodeInvalidInput,
			"SWITCH_TAB requires a tab index",
			nil,
		)
	}
	index, err := strconv.Atoi(strings.Trim(fields[0], ".,:;"))
	if err != nil {
		return 0, models.NewAgentError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("invalid tab index %q", fields[0]),
			err,
		)
	}
	return index, nil
}

// wait pauses without blocking cancellation.
func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
