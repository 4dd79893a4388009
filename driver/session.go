package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/webpilot/models"
)

// Health scoring, applied by ExecuteProgram and Navigate: successes pay
// down half a point, failures add one. The janitor probes sessions whose
// score reaches retireScore and reaps the dead ones.
const (
	healthSuccessCredit = 0.5
	healthFailureCost   = 1.0
	retireScore         = 3.0
)

// Session is one isolated browsing context with its own cookies, tabs, and
// snapshot mode. It implements Driver over a live Rod page.
type Session struct {
	id          string
	browser     *rod.Browser // incognito context on the shared Chrome process
	hijack      *rod.HijackRouter
	navTimeout  time.Duration
	stepTimeout time.Duration

	mu        sync.Mutex
	page      *rod.Page
	fullPage  bool
	navigated bool
	createdAt time.Time
	lastUsed  time.Time
	errScore  float64
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads url in the focused tab.
//
// Lifecycle:
//  1. Deadline guard: page loads are capped by the navigation timeout
//  2. Referer seeding: the first navigation looks like a Google referral
//  3. Navigate: triggers the page load
//  4. Wait: DOM stable, best effort
func (s *Session) Navigate(ctx context.Context, target string) error {
	s.touch()

	// ── 1. Deadline guard ───────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	page := s.currentPage()
	p := page.Context(ctx)

	// ── 2. Referer seeding (first navigation only) ──────────────────
	s.mu.Lock()
	first := !s.navigated
	s.navigated = true
	s.mu.Unlock()
	if first {
		if u, parseErr := url.Parse(target); parseErr == nil && u.Hostname() != "" {
			_ = proto.NetworkSetExtraHTTPHeaders{
				Headers: toHeadersMap(map[string]string{
					"Referer": "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
				}),
			}.Call(page)
		}
	}

	// ── 3. Navigate ─────────────────────────────────────────────────
	if err := p.Navigate(target); err != nil {
		s.recordFailure()
		return categorizeError(err, "navigation to target URL failed")
	}

	// ── 4. Wait for the DOM to settle ───────────────────────────────
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", err,
		)
	}

	s.recordSuccess()
	return nil
}

// CurrentURL reports the focused tab's URL.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	p := s.currentPage().Context(ctx)
	res, err := p.Eval(`() => window.location.href`)
	if err != nil {
		return "", categorizeError(err, "failed to read page URL")
	}
	return res.Value.Str(), nil
}

// Title reports the focused tab's document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	p := s.currentPage().Context(ctx)
	res, err := p.Eval(`() => document.title`)
	if err != nil {
		return "", categorizeError(err, "failed to read page title")
	}
	return res.Value.Str(), nil
}

// viewportSnapshotJS serializes the document with subtrees fully outside the
// viewport removed. Zero-size elements (hidden inputs, anchors) are kept.
const viewportSnapshotJS = `() => {
	const vh = window.innerHeight;
	const vw = window.innerWidth;
	const offscreen = [];
	document.querySelectorAll('body *').forEach(el => {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) return;
		if (rect.bottom < 0 || rect.top > vh || rect.right < 0 || rect.left > vw) {
			offscreen.push(el);
		}
	});
	offscreen.forEach(el => el.setAttribute('data-wp-offscreen', '1'));
	const clone = document.documentElement.cloneNode(true);
	offscreen.forEach(el => el.removeAttribute('data-wp-offscreen'));
	clone.querySelectorAll('[data-wp-offscreen]').forEach(el => el.remove());
	return '<!DOCTYPE html>' + clone.outerHTML;
}`

// Snapshot serializes the DOM. Viewport mode prunes what the user cannot
// currently see; full-page mode returns the whole document.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	s.touch()
	p := s.currentPage().Context(ctx)

	if s.FullPage() {
		html, err := p.HTML()
		if err != nil {
			return "", categorizeError(err, "failed to serialize page")
		}
		return html, nil
	}

	res, err := p.Eval(viewportSnapshotJS)
	if err != nil {
		return "", categorizeError(err, "failed to serialize viewport")
	}
	return res.Value.Str(), nil
}

// Tabs lists the session's open tabs in the order the browser reports them,
// plus the index of the focused tab.
func (s *Session) Tabs(ctx context.Context) ([]models.Tab, int, error) {
	targets, err := s.pageTargets()
	if err != nil {
		return nil, 0, err
	}

	current := s.currentPage().TargetID
	tabs := make([]models.Tab, len(targets))
	focused := 0
	for i, t := range targets {
		tabs[i] = models.Tab{URL: t.URL, Title: t.Title}
		if t.TargetID == current {
			focused = i
		}
	}
	return tabs, focused, nil
}

// SwitchTab focuses the tab at index, as listed by Tabs.
func (s *Session) SwitchTab(ctx context.Context, index int) error {
	s.touch()

	targets, err := s.pageTargets()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(targets) {
		return models.NewAgentError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("tab index %d out of range, %d tabs open", index, len(targets)),
			nil,
		)
	}

	page, err := s.browser.PageFromTarget(targets[index].TargetID)
	if err != nil {
		return models.NewAgentError(models.ErrCodeBrowserCrash, "failed to attach to tab", err)
	}
	if _, err := page.Activate(); err != nil {
		return models.NewAgentError(models.ErrCodeActionFailed, "failed to focus tab", err)
	}

	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return nil
}

// Back navigates the focused tab one history entry back.
func (s *Session) Back(ctx context.Context) error {
	s.touch()
	p := s.currentPage().Context(ctx)
	if err := p.NavigateBack(); err != nil {
		return categorizeError(err, "failed to navigate back")
	}
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)
	return nil
}

// ScrollDown scrolls the focused tab down by one viewport.
func (s *Session) ScrollDown(ctx context.Context) error {
	return s.scrollViewport(ctx, 1)
}

// ScrollUp scrolls the focused tab up by one viewport.
func (s *Session) ScrollUp(ctx context.Context) error {
	return s.scrollViewport(ctx, -1)
}

func (s *Session) scrollViewport(ctx context.Context, direction int) error {
	s.touch()
	p := s.currentPage().Context(ctx)

	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return categorizeError(err, "failed to get viewport height")
	}

	delta := float64(direction * res.Value.Int())
	if err := p.Mouse.Scroll(0, delta, 0); err != nil {
		return categorizeError(err, "scroll failed")
	}
	return nil
}

// maxScanPasses caps how many viewports ScanPage walks on very long pages.
const maxScanPasses = 20

// ScanPage walks the full page height one viewport at a time so lazy-loaded
// content renders, then jumps back to the top.
func (s *Session) ScanPage(ctx context.Context) error {
	s.touch()
	p := s.currentPage().Context(ctx)

	res, err := p.Eval(`() => ({
		height: document.body ? document.body.scrollHeight : 0,
		viewport: window.innerHeight
	})`)
	if err != nil {
		return categorizeError(err, "failed to measure page")
	}
	height := res.Value.Get("height").Int()
	viewport := res.Value.Get("viewport").Int()
	if viewport <= 0 {
		return nil
	}

	passes := height / viewport
	if passes > maxScanPasses {
		passes = maxScanPasses
	}

	for i := 0; i < passes; i++ {
		if err := p.Mouse.Scroll(0, float64(viewport), 0); err != nil {
			return categorizeError(err, "scan scroll failed")
		}
		// Pause so lazy loaders see each viewport.
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return categorizeError(ctx.Err(), "scan interrupted")
		}
	}

	if _, err := p.Eval(`() => window.scrollTo(0, 0)`); err != nil {
		return categorizeError(err, "failed to scroll back to top")
	}
	return nil
}

// MaximizeWindow maximizes the browser window.
func (s *Session) MaximizeWindow(ctx context.Context) error {
	s.touch()
	p := s.currentPage().Context(ctx)

	win, err := proto.BrowserGetWindowForTarget{}.Call(p)
	if err != nil {
		return models.NewAgentError(models.ErrCodeActionFailed, "failed to resolve browser window", err)
	}

	err = proto.BrowserSetWindowBounds{
		WindowID: win.WindowID,
		Bounds:   &proto.BrowserBounds{WindowState: proto.BrowserWindowStateMaximized},
	}.Call(p)
	if err != nil {
		return models.NewAgentError(models.ErrCodeActionFailed, "failed to maximize window", err)
	}
	return nil
}

// SetFullPage flips between viewport-only and full-page snapshots. The
// controls engine sets full-page after SCAN and back to viewport after
// BACK or SWITCH_TAB.
func (s *Session) SetFullPage(full bool) {
	s.mu.Lock()
	s.fullPage = full
	s.mu.Unlock()
}

// FullPage reports the current snapshot mode.
func (s *Session) FullPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullPage
}

// Capability describes the action-program vocabulary for prompt assembly.
func (s *Session) Capability() string {
	return rodCapability
}

// Info returns a metadata snapshot for API responses.
func (s *Session) Info(ctx context.Context) models.SessionInfo {
	p := s.currentPage().Context(ctx)

	s.mu.Lock()
	info := models.SessionInfo{
		ID:         s.id,
		CreatedAt:  s.createdAt.UTC().Format(time.RFC3339),
		LastUsedAt: s.lastUsed.UTC().Format(time.RFC3339),
	}
	s.mu.Unlock()

	info.URL = evalStringOrEmpty(p, `() => window.location.href`)
	info.Title = evalStringOrEmpty(p, `() => document.title`)
	return info
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) currentPage() *rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) recordSuccess() {
	s.mu.Lock()
	s.errScore -= healthSuccessCredit
	if s.errScore < 0 {
		s.errScore = 0
	}
	s.mu.Unlock()
}

func (s *Session) recordFailure() {
	s.mu.Lock()
	s.errScore += healthFailureCost
	s.mu.Unlock()
}

func (s *Session) health() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errScore
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// alive probes the focused page with a trivial eval.
func (s *Session) alive() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.currentPage().Context(ctx).Eval(`() => 1`)
	return err == nil
}

// close stops the hijack router and closes every tab in the context.
func (s *Session) close() {
	if s.hijack != nil {
		_ = s.hijack.Stop()
	}

	targets, err := s.pageTargets()
	if err != nil {
		_ = s.currentPage().Close()
		return
	}
	for _, t := range targets {
		if page, pageErr := s.browser.PageFromTarget(t.TargetID); pageErr == nil {
			_ = page.Close()
		}
	}
}

// pageTargets enumerates the page targets belonging to this session's
// browser context.
func (s *Session) pageTargets() ([]*proto.TargetTargetInfo, error) {
	res, err := proto.TargetGetTargets{}.Call(s.browser)
	if err != nil {
		return nil, models.NewAgentError(models.ErrCodeBrowserCrash, "failed to list browser targets", err)
	}

	var targets []*proto.TargetTargetInfo
	for _, t := range res.TargetInfos {
		if t.Type != "page" || t.BrowserContextID != s.browser.BrowserContextID {
			continue
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed AgentErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.AgentError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAgentError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewAgentError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewAgentError(models.ErrCodeNavigation, msg, err)
	}
}
