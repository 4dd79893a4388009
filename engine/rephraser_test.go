package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/use-agent/webpilot/models"
)

func TestRephrase(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"query": "input \"Search\"", "action": "Click on the input \"Search\" and type \"laptops\""}`,
	}}
	rephraser := NewRephraser(client)

	got, err := rephraser.Rephrase(context.Background(), `Type "laptops" in the search bar`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Query != `input "Search"` {
		t.Errorf("query = %q", got.Query)
	}
	if !strings.Contains(got.Action, "laptops") {
		t.Errorf("action lost the payload: %q", got.Action)
	}
	if len(client.prompts) != 1 || !strings.Contains(client.prompts[0], "search bar") {
		t.Error("prompt did not carry the original instruction")
	}
}

func TestRephrase_ProseAroundJSON(t *testing.T) {
	client := &fakeLLM{replies: []string{
		"Here you go:\n```json\n" +
			`{"query": "button Submit", "action": "Click on Submit"}` +
			"\n```",
	}}
	rephraser := NewRephraser(client)

	got, err := rephraser.Rephrase(context.Background(), "Click submit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Query != "button Submit" || got.Action != "Click on Submit" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestRephrase_MissingField(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty action", `{"query": "button Submit", "action": ""}`},
		{"empty query", `{"query": "  ", "action": "Click on Submit"}`},
		{"not json", "click the button"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rephraser := NewRephraser(&fakeLLM{replies: []string{tt.reply}})

			_, err := rephraser.Rephrase(context.Background(), "Click submit")
			if err == nil {
				t.Fatal("expected an error")
			}
			var agentErr *models.AgentError
			if !errors.As(err, &agentErr) || agentErr.Code != models.ErrCodeLLMFailure {
				t.Errorf("expected %s, got %v", models.ErrCodeLLMFailure, err)
			}
		})
	}
}

func TestRephrase_LLMError(t *testing.T) {
	wantErr := errors.New("model unavailable")
	rephraser := NewRephraser(&fakeLLM{err: wantErr})

	_, err := rephraser.Rephrase(context.Background(), "Click submit")
	if !errors.Is(err, wantErr) {
		t.Errorf("expected the completion error to propagate, got %v", err)
	}
}
