package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeTimeout      = "NAV_TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"

	// Browser/driver error codes.
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeSessionLimit    = "SESSION_LIMIT"
	ErrCodeActionFailed    = "ACTION_FAILED"

	// Engine error codes.
	ErrCodeUnknownControl = "UNKNOWN_CONTROL"
	ErrCodeUnknownEngine  = "UNKNOWN_ENGINE"
	ErrCodeExtraction     = "CONTENT_EXTRACTION_FAILED"

	// LLM-related error codes.
	ErrCodeLLMFailure     = "LLM_FAILURE"
	ErrCodeLLMAuthFailure = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"

	// Agent loop error codes.
	ErrCodeObjectiveNotReached = "OBJECTIVE_NOT_REACHED"
	ErrCodeAgentStuck          = "AGENT_STUCK"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AgentError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type AgentError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a new AgentError.
func NewAgentError(code, message string, err error) *AgentError {
	return &AgentError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *AgentError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
