package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/use-agent/webpilot/models"
)

// Dispatcher routes instructions to engines by name.
type Dispatcher struct {
	engines map[string]Engine
	order   []string
}

// NewDispatcher registers the given engines under their names.
func NewDispatcher(engines ...Engine) *Dispatcher {
	d := &Dispatcher{
		engines: make(map[string]Engine, len(engines)),
		order:   make([]string, 0, len(engines)),
	}
	for _, eng := range engines {
		d.engines[eng.Name()] = eng
		d.order = append(d.order, eng.Name())
	}
	return d
}

// Names returns the routable engine names in registration order.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.order))
	copy(names, d.order)
	return names
}

// Execute routes the instruction to the engine registered under name.
func (d *Dispatcher) Execute(ctx context.Context, name, instruction string) (*models.ActionResult, error) {
	eng, ok := d.engines[name]
	if !ok {
		return nil, models.NewAgentError(
			models.ErrCodeUnknownEngine,
			fmt.Sprintf("unknown engine %q", name),
			nil,
		)
	}

	slog.Debug("dispatching instruction", "engine", name, "instruction", instruction)
	return eng.ExecuteInstruction(ctx, instruction)
}

// ExecuteLogged is Execute plus the engine's instruction log, for engines
// that keep one. The log is nil for engines that do not.
func (d *Dispatcher) ExecuteLogged(ctx context.Context, name, instruction string) (*models.ActionResult, *models.NavigationLog, error) {
	eng, ok := d.engines[name]
	if !ok {
		return nil, nil, models.NewAgentError(
			models.ErrCodeUnknownEngine,
			fmt.Sprintf("unknown engine %q", name),
			nil,
		)
	}

	slog.Debug("dispatching instruction", "engine", name, "instruction", instruction)
	if logged, ok := eng.(LoggedEngine); ok {
		return logged.ExecuteInstructionLogged(ctx, instruction)
	}
	result, err := eng.ExecuteInstruction(ctx, instruction)
	return result, nil, err
}
