package agent

import (
	"fmt"
	"strings"

	"github.com/use-agent/webpilot/models"
)

// maxMemoryOutput caps how much of a step's output is replayed to the
// planner. Extraction answers can run long; the planner only needs enough
// to know what was found.
const maxMemoryOutput = 400

// shortTermMemory keeps the last N steps rendered for the planner prompt.
type shortTermMemory struct {
	window  int
	entries []string
}

func newShortTermMemory(window int) *shortTermMemory {
	if window <= 0 {
		window = 10
	}
	return &shortTermMemory{window: window}
}

// add renders and appends one trajectory step, evicting the oldest entry
// beyond the window.
func (m *shortTermMemory) add(step models.TrajectoryStep) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", step.Status, step.Engine, step.Instruction)
	if step.Error != "" {
		fmt.Fprintf(&b, " (error: %s)", step.Error)
	}
	if out := strings.TrimSpace(step.Output); out != "" {
		if len(out) > maxMemoryOutput {
			out = out[:maxMemoryOutput] + "..."
		}
		fmt.Fprintf(&b, "\n  output: %s", out)
	}

	m.entries = append(m.entries, b.String())
	if len(m.entries) > m.window {
		m.entries = m.entries[len(m.entries)-m.window:]
	}
}

// render returns the remembered steps oldest-first, or a placeholder when
// the run just started.
func (m *shortTermMemory) render() string {
	if len(m.entries) == 0 {
		return "(none yet)"
	}
	return strings.Join(m.entries, "\n")
}
