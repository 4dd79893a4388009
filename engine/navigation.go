package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/driver"
	"github.com/use-agent/webpilot/llm"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/retriever"
)

// Navigation generates and executes action programs against the live page.
// Each instruction is rephrased once, grounded in retrieved DOM fragments
// once, and then attempted up to the configured budget.
type Navigation struct {
	driver       driver.Driver
	llm          llm.Client
	retriever    retriever.Retriever
	rephraser    *Rephraser
	attempts     int
	actionDelay  time.Duration
	raiseOnError bool
}

// NewNavigation creates the navigation engine for one driver.
func NewNavigation(drv driver.Driver, client llm.Client, retr retriever.Retriever, cfg config.EngineConfig) *Navigation {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := cfg.ActionDelay
	if delay <= 0 {
		delay = 1500 * time.Millisecond
	}
	return &Navigation{
		driver:       drv,
		llm:          client,
		retriever:    retr,
		rephraser:    NewRephraser(client),
		attempts:     attempts,
		actionDelay:  delay,
		raiseOnError: cfg.RaiseOnError,
	}
}

// Name implements Engine.
func (n *Navigation) Name() string {
	return NavigationName
}

// SetRaiseOnError flips fail-fast mode: when set, the first failed attempt
// aborts the instruction instead of consuming the remaining budget.
func (n *Navigation) SetRaiseOnError(raise bool) {
	n.raiseOnError = raise
}

// ExecuteInstruction implements Engine.
func (n *Navigation) ExecuteInstruction(ctx context.Context, instruction string) (*models.ActionResult, error) {
	result, _, err := n.ExecuteInstructionLogged(ctx, instruction)
	return result, err
}

// ExecuteInstructionLogged runs one instruction and returns the result plus
// the full instruction log.
//
// Lifecycle:
//  1. Rephrase: one LLM call yielding the retrieval query and the action
//  2. Retrieve: one snapshot and one retrieval, never retried
//  3. Attempts: generate, sanitize, execute, up to the attempt budget
func (n *Navigation) ExecuteInstructionLogged(ctx context.Context, instruction string) (*models.ActionResult, *models.NavigationLog, error) {
	// ── 1. Rephrase ─────────────────────────────────────────────────
	rephraseStart := time.Now()
	rephrased, err := n.rephraser.Rephrase(ctx, instruction)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("instruction rephrased",
		"query", rephrased.Query,
		"action", rephrased.Action,
	)

	logEntry := &models.NavigationLog{
		OriginalInstruction: instruction,
		EngineInput:         rephrased.Action,
		RetrievalQuery:      rephrased.Query,
		RephraseMs:          time.Since(rephraseStart).Milliseconds(),
		RetrieverName:       n.retriever.Name(),
	}

	// ── 2. Snapshot + retrieve ──────────────────────────────────────
	html, err := n.driver.Snapshot(ctx)
	if err != nil {
		return nil, logEntry, err
	}

	retrievalStart := time.Now()
	frags, err := n.retriever.Retrieve(ctx, rephrased.Query, html)
	logEntry.RetrievalMs = time.Since(retrievalStart).Milliseconds()
	if err != nil {
		return nil, logEntry, err
	}

	fragHTML := make([]string, len(frags))
	for i, frag := range frags {
		fragHTML[i] = frag.HTML
	}
	logEntry.RetrievedFragments = fragHTML
	htmlContext := strings.Join(fragHTML, "\n")

	// ── 3. Attempt loop ─────────────────────────────────────────────
	var (
		success  bool
		codeFull strings.Builder
		lastErr  error
	)
	for attempt := 1; attempt <= n.attempts; attempt++ {
		attemptLog, steps, attemptErr := n.generate(ctx, htmlContext, rephrased.Action)
		if attemptErr == nil {
			// The program counts toward the accumulated code whether
			// or not it executes cleanly.
			if codeFull.Len() > 0 {
				codeFull.WriteByte('\n')
			}
			codeFull.WriteString(attemptLog.Program)

			execStart := time.Now()
			attemptErr = n.driver.ExecuteProgram(ctx, steps)
			attemptLog.ExecutionMs = time.Since(execStart).Milliseconds()
			if attemptErr == nil {
				// Let the page settle before the next observation.
				attemptErr = wait(ctx, n.actionDelay)
			}
		}

		attemptLog.Success = attemptErr == nil
		if attemptErr != nil {
			attemptLog.Error = attemptErr.Error()
		}
		logEntry.Attempts = append(logEntry.Attempts, *attemptLog)

		if attemptErr == nil {
			success = true
			break
		}

		lastErr = attemptErr
		slog.Warn("navigation attempt failed",
			"attempt", attempt,
			"attempts", n.attempts,
			"error", attemptErr,
		)
		if n.raiseOnError || ctx.Err() != nil {
			break
		}
	}

	result := &models.ActionResult{
		Instruction: rephrased.Action,
		Code:        codeFull.String(),
		Success:     success,
	}
	if !success {
		if n.raiseOnError {
			return result, logEntry, lastErr
		}
		return result, logEntry, models.NewAgentError(
			models.ErrCodeNavigation,
			fmt.Sprintf("instruction failed after %d attempts", len(logEntry.Attempts)),
			lastErr,
		)
	}
	return result, logEntry, nil
}

// generate runs one code-generation attempt: prompt, completion, parse,
// sanitize. The returned log always carries the prompt, model and duration;
// Program holds the sanitized program, or the raw reply when it could not
// be turned into one.
func (n *Navigation) generate(ctx context.Context, htmlContext, action string) (*models.AttemptLog, []models.ProgramStep, error) {
	prompt := navigationPrompt(n.driver.Capability(), htmlContext, action)

	start := time.Now()
	reply, err := n.llm.Complete(ctx, prompt)
	attemptLog := &models.AttemptLog{
		GenerationMs: time.Since(start).Milliseconds(),
		Prompt:       prompt,
		Model:        n.llm.ModelName(),
	}
	if err != nil {
		return attemptLog, nil, err
	}

	steps, err := ParseProgram(reply)
	if err != nil {
		attemptLog.Program = strings.TrimSpace(reply)
		return attemptLog, nil, err
	}
	steps, err = SanitizeProgram(steps)
	if err != nil {
		attemptLog.Program = strings.TrimSpace(reply)
		return attemptLog, nil, err
	}

	encoded, _ := json.Marshal(steps)
	attemptLog.Program = string(encoded)
	return attemptLog, steps, nil
}

// navigationPrompt assembles the code-generation prompt: the driver's
// capability description, the retrieved HTML context, and the standardized
// action.
func navigationPrompt(capability, htmlContext, action string) string {
	return fmt.Sprintf(`%s

HTML:
%s

Instruction: %s

Action program (JSON array only):`, capability, htmlContext, action)
}
