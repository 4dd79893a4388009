// Package driver abstracts browser control behind the small surface the
// instruction engines program against: navigation, DOM snapshots, tab
// management, and sanitized action-program execution. The Rod implementation
// drives real Chrome sessions; tests substitute in-memory fakes.
package driver

import (
	"context"

	"github.com/use-agent/webpilot/models"
)

// Driver is one controllable browsing context.
type Driver interface {
	// Navigate loads url in the focused tab.
	Navigate(ctx context.Context, url string) error

	// CurrentURL reports the focused tab's URL.
	CurrentURL(ctx context.Context) (string, error)

	// Title reports the focused tab's document title.
	Title(ctx context.Context) (string, error)

	// Snapshot serializes the page DOM. In viewport mode (the default),
	// subtrees fully outside the viewport are pruned; in full-page mode the
	// whole document is returned.
	Snapshot(ctx context.Context) (string, error)

	// Tabs lists the open tabs and the index of the focused one.
	Tabs(ctx context.Context) ([]models.Tab, int, error)

	// ExecuteProgram runs an action program step by step. The first failing
	// step aborts the program.
	ExecuteProgram(ctx context.Context, steps []models.ProgramStep) error

	// ScrollDown scrolls the focused tab down by one viewport.
	ScrollDown(ctx context.Context) error

	// ScrollUp scrolls the focused tab up by one viewport.
	ScrollUp(ctx context.Context) error

	// Back navigates the focused tab one history entry back.
	Back(ctx context.Context) error

	// ScanPage scrolls through the whole page to force lazy content in,
	// then returns to the top.
	ScanPage(ctx context.Context) error

	// MaximizeWindow maximizes the browser window.
	MaximizeWindow(ctx context.Context) error

	// SwitchTab focuses the tab at the given index from Tabs.
	SwitchTab(ctx context.Context, index int) error

	// SetFullPage flips between viewport-only and full-page snapshots.
	SetFullPage(full bool)

	// FullPage reports the current snapshot mode.
	FullPage() bool

	// Capability describes the driver's action-program vocabulary for
	// prompt assembly.
	Capability() string
}

// rodCapability documents the JSON action-program vocabulary the Rod driver
// executes. The navigation engine injects it into the generation prompt.
const rodCapability = `Actions are a JSON array of step objects, executed in order.
Supported steps:
  {"type": "click", "selector": CSS}                          click the first matching element
  {"type": "type", "selector": CSS, "text": STRING}           replace the element's value with text
  {"type": "press", "key": KEY, "selector": CSS?}             press a key (Enter, Tab, Escape, Backspace, Delete, ArrowUp, ArrowDown, ArrowLeft, ArrowRight, PageUp, PageDown, Home, End); the optional selector is focused first
  {"type": "hover", "selector": CSS}                          move the mouse over the element
  {"type": "select", "selector": CSS, "value": STRING}        choose a dropdown option by visible text
  {"type": "scroll", "pixels": INT}                           scroll vertically, negative scrolls up
  {"type": "wait", "milliseconds": INT}                       pause
  {"type": "wait_for", "selector": CSS, "milliseconds": INT}  wait until the element appears
Selectors must be valid CSS. Use at most 12 steps.`
