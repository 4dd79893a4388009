package models

// SessionRequest is the payload for POST /api/v1/sessions.
type SessionRequest struct {
	// URL is an optional page to open right after the session starts.
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// Stealth enables anti-bot-detection evasions for this session.
	// Default: true.
	Stealth *bool `json:"stealth,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *SessionRequest) Defaults() {
	if r.Stealth == nil {
		t := true
		r.Stealth = &t
	}
}

// NavigateRequest is the payload for POST /api/v1/sessions/:id/navigate.
type NavigateRequest struct {
	// URL is the page to load in the session's focused tab. Required.
	URL string `json:"url" binding:"required,url"`
}

// RunRequest is the payload for POST /api/v1/run: one natural-language
// instruction executed against an existing browser session.
type RunRequest struct {
	// SessionID identifies the browser session to act on. Required.
	SessionID string `json:"session_id" binding:"required"`

	// Instruction is the natural-language instruction to perform. Required.
	Instruction string `json:"instruction" binding:"required"`

	// Engine names the engine to use. Allowed: "Navigation Engine"
	// (default), "Navigation Controls", "Extraction Engine".
	Engine string `json:"engine,omitempty"`

	// Timeout is the maximum duration in seconds for the whole call.
	// Default: 60. Max: 300.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=300"`

	// RaiseOnError makes the navigation engine fail fast on the first
	// execution error instead of retrying the full attempt budget.
	RaiseOnError *bool `json:"raise_on_error,omitempty"`

	// IncludeLog controls whether the per-attempt navigation log is
	// returned in the response. Default: true.
	IncludeLog *bool `json:"include_log,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *RunRequest) Defaults() {
	if r.Engine == "" {
		r.Engine = "Navigation Engine"
	}
	if r.Timeout == 0 {
		r.Timeout = 60
	}
	if r.RaiseOnError == nil {
		f := false
		r.RaiseOnError = &f
	}
	if r.IncludeLog == nil {
		t := true
		r.IncludeLog = &t
	}
}

// ObjectiveRequest is the payload for POST /api/v1/objectives: an
// asynchronous multi-step run driven by the planner.
type ObjectiveRequest struct {
	// Objective is the high-level goal in natural language. Required.
	Objective string `json:"objective" binding:"required"`

	// URL is the starting page. Required unless SessionID points at a
	// session that is already on a page.
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// SessionID reuses an existing session instead of creating one.
	SessionID string `json:"session_id,omitempty"`

	// MaxSteps caps the number of planner steps. Default: 10. Max: 50.
	MaxSteps int `json:"max_steps,omitempty" binding:"omitempty,min=1,max=50"`

	// KeepSession leaves the session open after the run so the caller
	// can inspect or continue it. Ignored when SessionID was supplied
	// (caller-owned sessions are never closed by the run).
	KeepSession bool `json:"keep_session,omitempty"`

	// WebhookURL receives an objective.completed / objective.failed event
	// when the run finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *ObjectiveRequest) Defaults() {
	if r.MaxSteps == 0 {
		r.MaxSteps = 10
	}
}

// ExtractRequest is the payload for POST /api/v1/extract: answer a
// question about a page without navigating it.
type ExtractRequest struct {
	// Instruction is the question or extraction request. Required.
	Instruction string `json:"instruction" binding:"required"`

	// SessionID extracts from the live page of an existing session.
	SessionID string `json:"session_id,omitempty"`

	// URL extracts from a statically fetched page when no session is
	// given. Exactly one of SessionID and URL must be set.
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// Timeout is the maximum duration in seconds. Default: 60. Max: 300.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=300"`
}

// Defaults applies default values to unset fields.
func (r *ExtractRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 60
	}
}
