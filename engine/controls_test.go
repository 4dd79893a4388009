package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/use-agent/webpilot/models"
)

func TestControls_Dispatch(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		wantCall    string
		wantCode    string
	}{
		{"scroll down", "SCROLL_DOWN", "ScrollDown", "driver.ScrollDown()"},
		{"scroll up", "SCROLL_UP", "ScrollUp", "driver.ScrollUp()"},
		{"back", "BACK", "Back", "driver.Back()"},
		{"scan", "SCAN", "ScanPage", "driver.ScanPage()"},
		{"maximize", "MAXIMIZE_WINDOW", "MaximizeWindow", "driver.MaximizeWindow()"},
		{"switch tab", "SWITCH_TAB 2", "SwitchTab", "driver.SwitchTab(2)"},
		{"embedded in prose", "please SCROLL_DOWN a bit", "ScrollDown", "driver.ScrollDown()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := &fakeDriver{}
			controls := NewControls(drv, time.Millisecond)

			result, err := controls.ExecuteInstruction(context.Background(), tt.instruction)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.Success {
				t.Error("expected success")
			}
			if result.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", result.Code, tt.wantCode)
			}
			if !drv.called(tt.wantCall) {
				t.Errorf("driver method %s was not called (calls: %v)", tt.wantCall, drv.calls)
			}
		})
	}
}

func TestControls_ScrollDownBeforeScrollUp(t *testing.T) {
	// SCROLL_DOWN contains no SCROLL_UP and vice versa, but an instruction
	// mentioning both must resolve to the first match in dispatch order.
	drv := &fakeDriver{}
	controls := NewControls(drv, time.Millisecond)

	result, err := controls.ExecuteInstruction(context.Background(), "SCROLL_DOWN then SCROLL_UP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Code != "driver.ScrollDown()" {
		t.Errorf("expected SCROLL_DOWN to win, got %q", result.Code)
	}
	if drv.called("ScrollUp") {
		t.Error("ScrollUp should not have been called")
	}
}

func TestControls_ScanEnablesFullPage(t *testing.T) {
	drv := &fakeDriver{}
	controls := NewControls(drv, time.Millisecond)

	if _, err := controls.ExecuteInstruction(context.Background(), "SCAN"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !drv.FullPage() {
		t.Error("SCAN should switch the driver to full-page snapshots")
	}

	if _, err := controls.ExecuteInstruction(context.Background(), "BACK"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drv.FullPage() {
		t.Error("BACK should reset the driver to viewport snapshots")
	}
}

func TestControls_SwitchTabResetsFullPage(t *testing.T) {
	drv := &fakeDriver{}
	drv.SetFullPage(true)
	controls := NewControls(drv, time.Millisecond)

	if _, err := controls.ExecuteInstruction(context.Background(), "SWITCH_TAB 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drv.FullPage() {
		t.Error("SWITCH_TAB should reset the driver to viewport snapshots")
	}
}

func TestControls_SwitchTabBadIndex(t *testing.T) {
	drv := &fakeDriver{}
	controls := NewControls(drv, time.Millisecond)

	_, err := controls.ExecuteInstruction(context.Background(), "SWITCH_TAB first")
	if err == nil {
		t.Fatal("expected an error for a non-numeric tab index")
	}
	var agentErr *models.AgentError
	if !errors.As(err, &agentErr) || agentErr.Code != models.ErrCodeInvalidInput {
		t.Errorf("expected %s, got %v", models.ErrCodeInvalidInput, err)
	}

	_, err = controls.ExecuteInstruction(context.Background(), "SWITCH_TAB")
	if err == nil {
		t.Fatal("expected an error for a missing tab index")
	}
}

func TestControls_Wait(t *testing.T) {
	drv := &fakeDriver{}
	controls := NewControls(drv, 5*time.Millisecond)

	start := time.Now()
	result, err := controls.ExecuteInstruction(context.Background(), "WAIT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("WAIT returned before the configured delay")
	}
}

func TestControls_WaitCanceled(t *testing.T) {
	drv := &fakeDriver{}
	controls := NewControls(drv, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := controls.ExecuteInstruction(ctx, "WAIT")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestControls_Unknown(t *testing.T) {
	drv := &fakeDriver{}
	controls := NewControls(drv, time.Millisecond)

	_, err := controls.ExecuteInstruction(context.Background(), "DO_A_BARREL_ROLL")
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	var agentErr *models.AgentError
	if !errors.As(err, &agentErr) || agentErr.Code != models.ErrCodeUnknownControl {
		t.Errorf("expected %s, got %v", models.ErrCodeUnknownControl, err)
	}
}
