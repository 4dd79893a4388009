package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/retriever"
)

const rephraseReply = `{"query": "button \"Submit\"", "action": "Click on \"Submit\""}`

func navFixture(llm *fakeLLM, attempts int) (*Navigation, *fakeDriver, *fakeRetriever) {
	drv := &fakeDriver{html: `<html><body><button id="submit">Submit</button></body></html>`}
	retr := &fakeRetriever{frags: []retriever.Fragment{
		{Selector: "#submit", HTML: `<button id="submit">Submit</button>`, Text: "Submit"},
	}}
	nav := NewNavigation(drv, llm, retr, config.EngineConfig{
		Attempts:    attempts,
		ActionDelay: time.Millisecond,
	})
	return nav, drv, retr
}

func TestNavigation_FirstAttemptSucceeds(t *testing.T) {
	client := &fakeLLM{replies: []string{
		rephraseReply,
		`[{"type": "click", "selector": "#submit"}]`,
	}}
	nav, drv, retr := navFixture(client, 3)

	result, navLog, err := nav.ExecuteInstructionLogged(context.Background(), "Click the submit button")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Success {
		t.Error("expected success")
	}
	if result.Instruction != `Click on "Submit"` {
		t.Errorf("result should carry the rephrased action, got %q", result.Instruction)
	}
	if !strings.Contains(result.Code, `"selector":"#submit"`) {
		t.Errorf("result code missing the program: %q", result.Code)
	}

	if len(drv.executed) != 1 {
		t.Fatalf("expected 1 executed program, got %d", len(drv.executed))
	}
	if drv.executed[0][0].Selector != "#submit" {
		t.Errorf("unexpected program: %+v", drv.executed[0])
	}

	if navLog.OriginalInstruction != "Click the submit button" {
		t.Errorf("log original = %q", navLog.OriginalInstruction)
	}
	if navLog.EngineInput != `Click on "Submit"` {
		t.Errorf("log engine input = %q", navLog.EngineInput)
	}
	if navLog.RetrievalQuery != `button "Submit"` {
		t.Errorf("log retrieval query = %q", navLog.RetrievalQuery)
	}
	if navLog.RetrieverName != "fake-retriever" {
		t.Errorf("log retriever name = %q", navLog.RetrieverName)
	}
	if len(navLog.RetrievedFragments) != 1 {
		t.Fatalf("expected 1 retrieved fragment, got %d", len(navLog.RetrievedFragments))
	}
	if len(navLog.Attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(navLog.Attempts))
	}

	attempt := navLog.Attempts[0]
	if !attempt.Success {
		t.Error("attempt should be marked successful")
	}
	if attempt.Model != "fake-model" {
		t.Errorf("attempt model = %q", attempt.Model)
	}
	if !strings.Contains(attempt.Prompt, "fake driver capability") {
		t.Error("prompt missing the driver capability")
	}
	if !strings.Contains(attempt.Prompt, `<button id="submit">`) {
		t.Error("prompt missing the retrieved HTML")
	}
	if !strings.Contains(attempt.Prompt, `Click on "Submit"`) {
		t.Error("prompt missing the rephrased action")
	}

	// Retrieval runs once, with the rephrased query.
	if len(retr.queries) != 1 || retr.queries[0] != `button "Submit"` {
		t.Errorf("retriever queries = %v", retr.queries)
	}
}

func TestNavigation_RetriesThenSucceeds(t *testing.T) {
	program := `[{"type": "click", "selector": "#submit"}]`
	client := &fakeLLM{replies: []string{rephraseReply, program, program}}
	nav, drv, _ := navFixture(client, 3)

	execs := 0
	drv.execFunc = func([]models.ProgramStep) error {
		execs++
		if execs == 1 {
			return errors.New("element detached")
		}
		return nil
	}

	result, navLog, err := nav.ExecuteInstructionLogged(context.Background(), "Click the submit button")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("expected eventual success")
	}
	if len(navLog.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(navLog.Attempts))
	}
	if navLog.Attempts[0].Success || navLog.Attempts[0].Error == "" {
		t.Errorf("first attempt should record the failure: %+v", navLog.Attempts[0])
	}
	if !navLog.Attempts[1].Success {
		t.Error("second attempt should succeed")
	}

	// Both generated programs accumulate into the result code.
	if got := strings.Count(result.Code, `"type":"click"`); got != 2 {
		t.Errorf("expected 2 programs in code, found %d: %q", got, result.Code)
	}
}

func TestNavigation_AttemptsExhausted(t *testing.T) {
	program := `[{"type": "click", "selector": "#submit"}]`
	client := &fakeLLM{replies: []string{rephraseReply, program, program, program}}
	nav, drv, _ := navFixture(client, 3)
	drv.execErr = errors.New("element detached")

	result, navLog, err := nav.ExecuteInstructionLogged(context.Background(), "Click the submit button")
	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
	var agentErr *models.AgentError
	if !errors.As(err, &agentErr) || agentErr.Code != models.ErrCodeNavigation {
		t.Errorf("expected %s, got %v", models.ErrCodeNavigation, err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error should name the attempt count: %v", err)
	}
	if result.Success {
		t.Error("result should be marked failed")
	}
	if len(navLog.Attempts) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(navLog.Attempts))
	}
	for i, attempt := range navLog.Attempts {
		if attempt.Success {
			t.Errorf("attempt %d should be marked failed", i)
		}
	}
}

func TestNavigation_RaiseOnError(t *testing.T) {
	client := &fakeLLM{replies: []string{
		rephraseReply,
		`[{"type": "click", "selector": "#submit"}]`,
	}}
	nav, drv, _ := navFixture(client, 5)
	nav.SetRaiseOnError(true)

	wantErr := errors.New("element detached")
	drv.execErr = wantErr

	result, navLog, err := nav.ExecuteInstructionLogged(context.Background(), "Click the submit button")
	if !errors.Is(err, wantErr) {
		t.Errorf("expected the execution error itself, got %v", err)
	}
	if result == nil || result.Success {
		t.Error("result should be present and failed")
	}
	if len(navLog.Attempts) != 1 {
		t.Errorf("raise-on-error should stop after 1 attempt, got %d", len(navLog.Attempts))
	}
}

func TestNavigation_BadProgramRecordsReply(t *testing.T) {
	client := &fakeLLM{replies: []string{
		rephraseReply,
		"I would click the submit button now.",
		`[{"type": "click", "selector": "#submit"}]`,
	}}
	nav, drv, _ := navFixture(client, 3)

	result, navLog, err := nav.ExecuteInstructionLogged(context.Background(), "Click the submit button")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("expected eventual success")
	}
	if len(navLog.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(navLog.Attempts))
	}

	first := navLog.Attempts[0]
	if first.Success {
		t.Error("unparseable attempt should be marked failed")
	}
	if first.Program != "I would click the submit button now." {
		t.Errorf("unparseable attempt should record the raw reply, got %q", first.Program)
	}

	// The unparseable reply must not leak into the executed code.
	if strings.Contains(result.Code, "I would click") {
		t.Errorf("raw reply leaked into code: %q", result.Code)
	}
	if len(drv.executed) != 1 {
		t.Errorf("only the valid program should execute, got %d", len(drv.executed))
	}
}

func TestNavigation_RephraseErrorPropagates(t *testing.T) {
	wantErr := errors.New("model unavailable")
	nav, _, _ := navFixture(&fakeLLM{err: wantErr}, 3)

	_, navLog, err := nav.ExecuteInstructionLogged(context.Background(), "Click the submit button")
	if !errors.Is(err, wantErr) {
		t.Errorf("expected the rephrase error, got %v", err)
	}
	if navLog != nil {
		t.Errorf("no log should exist before rephrasing succeeds, got %+v", navLog)
	}
}

func TestNavigation_CanceledContextStopsRetries(t *testing.T) {
	program := `[{"type": "click", "selector": "#submit"}]`
	client := &fakeLLM{replies: []string{rephraseReply, program, program, program}}
	nav, drv, _ := navFixture(client, 3)
	drv.execErr = errors.New("element detached")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, navLog, err := nav.ExecuteInstructionLogged(ctx, "Click the submit button")
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(navLog.Attempts) != 1 {
		t.Errorf("canceled context should stop after 1 attempt, got %d", len(navLog.Attempts))
	}
}

func TestNavigation_ExecuteInstruction(t *testing.T) {
	client := &fakeLLM{replies: []string{
		rephraseReply,
		`[{"type": "click", "selector": "#submit"}]`,
	}}
	nav, _, _ := navFixture(client, 3)

	result, err := nav.ExecuteInstruction(context.Background(), "Click the submit button")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
}
