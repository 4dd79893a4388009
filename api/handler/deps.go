// Package handler implements the HTTP handlers of the agent API: session
// lifecycle, single-instruction runs, asynchronous objectives, sessionless
// extraction, and health.
package handler

import (
	"context"
	"time"

	"github.com/use-agent/webpilot/agent"
	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/driver"
	"github.com/use-agent/webpilot/engine"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/webhook"
)

// Session is one live browser session as the handlers see it.
type Session interface {
	driver.Driver

	// ID returns the session identifier.
	ID() string

	// Info describes the session for API responses.
	Info(ctx context.Context) models.SessionInfo
}

// Sessions is the session pool the handlers allocate from.
type Sessions interface {
	// Create opens a new session, optionally navigating to startURL.
	// stealth, when non-nil, overrides the configured default.
	Create(ctx context.Context, startURL string, stealth *bool) (Session, error)

	// Get returns a live session by ID.
	Get(id string) (Session, bool)

	// Close closes a session and frees its pool slot.
	Close(id string) error

	// List describes all live sessions, oldest first.
	List(ctx context.Context) []models.SessionInfo

	// Stats reports pool usage.
	Stats() models.SessionStats
}

// PageLoader renders a URL outside any session, for extraction requests
// that name a URL instead of a session.
type PageLoader interface {
	HTML(ctx context.Context, target string) (string, driver.RenderMode, error)
}

// EngineFactory builds the engine set for one driver. Engines hold
// per-page state, so each request builds a fresh set.
type EngineFactory func(drv driver.Driver) *engine.Set

// AgentFactory builds an objective agent for one driver.
type AgentFactory func(drv driver.Driver, maxSteps int) *agent.Agent

// AnswerFunc answers an extraction instruction over already-fetched HTML.
type AnswerFunc func(ctx context.Context, instruction, rawHTML, sourceURL string) (string, []string, error)

// Deps bundles the collaborators the handlers are wired with.
type Deps struct {
	Sessions Sessions
	Engines  EngineFactory
	Agents   AgentFactory
	Loader   PageLoader
	Answer   AnswerFunc
	Webhooks *webhook.Notifier
	Config   *config.Config
	Start    time.Time
}
