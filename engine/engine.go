// Package engine implements the instruction engines an agent run is built
// from: Navigation (LLM code generation against the live page), Controls
// (deterministic keyword commands), and Extraction (read-only question
// answering over page content), plus the dispatcher that routes an
// instruction to one of them by name.
package engine

import (
	"context"

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/driver"
	"github.com/use-agent/webpilot/llm"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/retriever"
)

// Engine names, as the planner and the API address them.
const (
	NavigationName = "Navigation Engine"
	ControlsName   = "Navigation Controls"
	ExtractionName = "Extraction Engine"
)

// Engine executes one instruction against the current page.
type Engine interface {
	// Name returns the identifier the dispatcher routes on.
	Name() string

	// ExecuteInstruction runs one instruction and reports the outcome.
	ExecuteInstruction(ctx context.Context, instruction string) (*models.ActionResult, error)
}

// LoggedEngine is implemented by engines that produce a detailed
// per-instruction log alongside the result.
type LoggedEngine interface {
	Engine

	// ExecuteInstructionLogged is ExecuteInstruction plus the
	// instruction log. The log is returned even when execution fails.
	ExecuteInstructionLogged(ctx context.Context, instruction string) (*models.ActionResult, *models.NavigationLog, error)
}

// Deps carries the shared collaborators engines are built from.
type Deps struct {
	LLM       llm.Client
	Retriever retriever.Retriever
	Config    config.EngineConfig
}

// Set bundles the engines wired to one driver plus their dispatcher.
// Engines hold per-page state through the driver, so a Set is built per
// session (or per transient page) rather than shared.
type Set struct {
	Navigation *Navigation
	Controls   *Controls
	Extraction *Extraction
	Dispatcher *Dispatcher
}

// NewSet wires the three engines and their dispatcher to a driver.
func NewSet(drv driver.Driver, deps Deps) *Set {
	nav := NewNavigation(drv, deps.LLM, deps.Retriever, deps.Config)
	controls := NewControls(drv, deps.Config.ActionDelay)
	extraction := NewExtraction(drv, deps.LLM, deps.Retriever)
	return &Set{
		Navigation: nav,
		Controls:   controls,
		Extraction: extraction,
		Dispatcher: NewDispatcher(nav, controls, extraction),
	}
}
