package models

// ErrorResponse is the generic error envelope for responses that carry no
// endpoint-specific payload.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo reports wall-clock durations for a request.
type TimingInfo struct {
	// TotalMs is the total request duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// EngineMs is the time spent inside the engine, excluding
	// transport and queueing.
	EngineMs int64 `json:"engine_ms,omitempty"`
}

// RunResponse is returned by POST /api/v1/run.
type RunResponse struct {
	Success bool           `json:"success"`
	Result  *ActionResult  `json:"result,omitempty"`
	Log     *NavigationLog `json:"log,omitempty"`
	Timing  *TimingInfo    `json:"timing,omitempty"`
	Error   *ErrorDetail   `json:"error,omitempty"`
}

// ObjectiveResponse is returned by POST /api/v1/objectives when the
// job is accepted.
type ObjectiveResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ObjectiveStatusResponse is returned by GET /api/v1/objectives/:id.
type ObjectiveStatusResponse struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Objective string           `json:"objective"`
	SessionID string           `json:"session_id,omitempty"`
	Output    string           `json:"output,omitempty"`
	Steps     []TrajectoryStep `json:"steps,omitempty"`
	Timing    *TimingInfo      `json:"timing,omitempty"`
	Error     *ErrorDetail     `json:"error,omitempty"`
}

// ExtractResponse is returned by POST /api/v1/extract.
type ExtractResponse struct {
	Success bool         `json:"success"`
	Output  string       `json:"output,omitempty"`
	Sources []string     `json:"sources,omitempty"`
	Timing  *TimingInfo  `json:"timing,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// SessionInfo describes one live browser session.
type SessionInfo struct {
	ID         string `json:"id"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at"`
}

// SessionResponse is returned by the session endpoints.
type SessionResponse struct {
	Success bool         `json:"success"`
	Session *SessionInfo `json:"session,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// SessionListResponse is returned by GET /api/v1/sessions.
type SessionListResponse struct {
	Success  bool          `json:"success"`
	Sessions []SessionInfo `json:"sessions"`
}

// SessionStats reports browser session pool usage.
type SessionStats struct {
	MaxSessions    int `json:"max_sessions"`
	ActiveSessions int `json:"active_sessions"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status   string       `json:"status"`
	Version  string       `json:"version"`
	Uptime   string       `json:"uptime"`
	Sessions SessionStats `json:"sessions"`
}
