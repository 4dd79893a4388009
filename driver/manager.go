package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/models"
)

// janitorInterval is how often idle and dead sessions are pruned.
const janitorInterval = 1 * time.Minute

// Manager tracks live sessions, enforces the concurrent session cap, and
// prunes idle or dead sessions in the background.
type Manager struct {
	browser     *Browser
	cfg         config.SessionConfig
	browserCfg  config.BrowserConfig
	stepTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	done     chan struct{}
}

// NewManager creates a session manager on top of a launched browser and
// starts the pruning janitor.
func NewManager(browser *Browser, cfg config.SessionConfig, browserCfg config.BrowserConfig, stepTimeout time.Duration) *Manager {
	m := &Manager{
		browser:     browser,
		cfg:         cfg,
		browserCfg:  browserCfg,
		stepTimeout: stepTimeout,
		sessions:    make(map[string]*Session),
		done:        make(chan struct{}),
	}
	go m.janitorLoop()
	return m
}

// Create opens a new isolated session, optionally navigating to startURL.
// stealthOverride, when non-nil, overrides the configured stealth default
// for this session only.
//
// Lifecycle:
//  1. Cap check: reject when the pool is full
//  2. Context: fresh incognito context, own cookie jar
//  3. Page: blank tab, stealth script, ad blocking
//  4. First page: navigate to startURL, roll back on failure
//  5. Register: the session becomes visible to Get and the janitor
func (m *Manager) Create(ctx context.Context, startURL string, stealthOverride *bool) (*Session, error) {
	// ── 1. Cap check ────────────────────────────────────────────────
	m.mu.RLock()
	active := len(m.sessions)
	m.mu.RUnlock()
	if active >= m.cfg.MaxSessions {
		return nil, models.NewAgentError(
			models.ErrCodeSessionLimit,
			fmt.Sprintf("session limit reached (%d)", m.cfg.MaxSessions),
			nil,
		)
	}

	// ── 2. Incognito context ────────────────────────────────────────
	incognito, err := m.browser.rod.Incognito()
	if err != nil {
		return nil, models.NewAgentError(models.ErrCodeBrowserCrash, "failed to create browser context", err)
	}

	// ── 3. Page setup ───────────────────────────────────────────────
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewAgentError(models.ErrCodeBrowserCrash, "failed to create page", err)
	}

	useStealth := m.browserCfg.Stealth
	if stealthOverride != nil {
		useStealth = *stealthOverride
	}
	if useStealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	s := &Session{
		id:          uuid.NewString(),
		browser:     incognito,
		navTimeout:  m.browserCfg.NavigationTimeout,
		stepTimeout: m.stepTimeout,
		page:        page,
		createdAt:   time.Now(),
		lastUsed:    time.Now(),
	}
	if m.browserCfg.BlockAds {
		s.hijack = setupHijack(page)
	}

	// ── 4. First page ───────────────────────────────────────────────
	if startURL != "" {
		if err := s.Navigate(ctx, startURL); err != nil {
			s.close()
			return nil, err
		}
	}

	// ── 5. Register ─────────────────────────────────────────────────
	m.mu.Lock()
	// Re-check the cap: creations may have raced in while the page
	// was launching.
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		s.close()
		return nil, models.NewAgentError(
			models.ErrCodeSessionLimit,
			fmt.Sprintf("session limit reached (%d)", m.cfg.MaxSessions),
			nil,
		)
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	slog.Info("session created",
		"sessionID", s.id,
		"startURL", startURL,
		"stealth", useStealth,
	)
	return s, nil
}

// Get returns a live session and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// Close terminates a session and frees its pool slot.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return models.NewAgentError(
			models.ErrCodeSessionNotFound,
			fmt.Sprintf("session %s not found", id),
			nil,
		)
	}

	s.close()
	slog.Info("session closed", "sessionID", id)
	return nil
}

// List returns metadata for all live sessions, oldest first.
func (m *Manager) List(ctx context.Context) []models.SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].createdAt.Before(sessions[j].createdAt)
	})

	infos := make([]models.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info(ctx))
	}
	return infos
}

// Stats reports pool occupancy.
func (m *Manager) Stats() models.SessionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.SessionStats{
		MaxSessions:    m.cfg.MaxSessions,
		ActiveSessions: len(m.sessions),
	}
}

// TransientHTML renders a URL in a throwaway incognito page and returns the
// rendered HTML. Extraction requests that name a URL instead of a session
// use this so they never occupy a pool slot.
func (m *Manager) TransientHTML(ctx context.Context, target string) (string, error) {
	incognito, err := m.browser.rod.Incognito()
	if err != nil {
		return "", models.NewAgentError(models.ErrCodeBrowserCrash, "failed to create browser context", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", models.NewAgentError(models.ErrCodeBrowserCrash, "failed to create page", err)
	}
	defer func() { _ = page.Close() }()

	if m.browserCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.browserCfg.NavigationTimeout)
	defer cancel()
	p := page.Context(ctx)

	if err := p.Navigate(target); err != nil {
		return "", categorizeError(err, "navigation to target URL failed")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", err,
		)
	}

	html, err := p.HTML()
	if err != nil {
		return "", categorizeError(err, "failed to serialize page")
	}
	return html, nil
}

// Shutdown stops the janitor and closes every session.
func (m *Manager) Shutdown() {
	close(m.done)

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		s.close()
		slog.Info("session closed", "sessionID", id)
	}
}

func (m *Manager) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.prune()
		}
	}
}

// prune closes sessions idle past the TTL, and sessions that accumulated a
// high error score and no longer answer a liveness probe.
func (m *Manager) prune() {
	cutoff := time.Now().Add(-m.cfg.TTL)

	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	for _, s := range candidates {
		expired := s.idleSince().Before(cutoff)
		dead := s.health() >= retireScore && !s.alive()
		if !expired && !dead {
			continue
		}

		m.mu.Lock()
		delete(m.sessions, s.id)
		m.mu.Unlock()

		s.close()
		slog.Info("session pruned", "sessionID", s.id, "expired", expired, "dead", dead)
	}
}
