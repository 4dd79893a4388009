package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/driver"
	"github.com/use-agent/webpilot/engine"
	"github.com/use-agent/webpilot/llm"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/retriever"
	"github.com/use-agent/webpilot/webhook"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeSession is an in-memory Session: a scriptable driver plus identity.
type fakeSession struct {
	mu       sync.Mutex
	id       string
	url      string
	title    string
	html     string
	fullPage bool
	navErr   error
	execErr  error
	calls    []string
	executed [][]models.ProgramStep
}

var _ Session = (*fakeSession)(nil)

func newFakeSession(id string) *fakeSession {
	return &fakeSession{
		id:    id,
		url:   "http://example.com/",
		title: "Example",
		html:  `<html><body><button id="go">Go</button><p>The answer is 42.</p></body></html>`,
	}
}

func (f *fakeSession) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeSession) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.record("Navigate")
	if f.navErr != nil {
		return f.navErr
	}
	f.mu.Lock()
	f.url = url
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeSession) Title(ctx context.Context) (string, error) {
	return f.title, nil
}

func (f *fakeSession) Snapshot(ctx context.Context) (string, error) {
	return f.html, nil
}

func (f *fakeSession) Tabs(ctx context.Context) ([]models.Tab, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []models.Tab{{URL: f.url, Title: f.title}}, 0, nil
}

func (f *fakeSession) ExecuteProgram(ctx context.Context, steps []models.ProgramStep) error {
	f.record("ExecuteProgram")
	f.mu.Lock()
	f.executed = append(f.executed, steps)
	f.mu.Unlock()
	return f.execErr
}

func (f *fakeSession) ScrollDown(ctx context.Context) error     { f.record("ScrollDown"); return nil }
func (f *fakeSession) ScrollUp(ctx context.Context) error       { f.record("ScrollUp"); return nil }
func (f *fakeSession) Back(ctx context.Context) error           { f.record("Back"); return nil }
func (f *fakeSession) ScanPage(ctx context.Context) error       { f.record("ScanPage"); return nil }
func (f *fakeSession) MaximizeWindow(ctx context.Context) error { f.record("MaximizeWindow"); return nil }

func (f *fakeSession) SwitchTab(ctx context.Context, index int) error {
	f.record("SwitchTab")
	return nil
}

func (f *fakeSession) SetFullPage(full bool) {
	f.mu.Lock()
	f.fullPage = full
	f.mu.Unlock()
}

func (f *fakeSession) FullPage() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fullPage
}

func (f *fakeSession) Capability() string { return "Actions are a JSON array of step objects." }
func (f *fakeSession) ID() string         { return f.id }

func (f *fakeSession) Info(ctx context.Context) models.SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.SessionInfo{
		ID:         f.id,
		URL:        f.url,
		Title:      f.title,
		CreatedAt:  "2026-01-02T15:04:05Z",
		LastUsedAt: "2026-01-02T15:04:05Z",
	}
}

// fakePool is an in-memory Sessions implementation.
type fakePool struct {
	mu     sync.Mutex
	max    int
	nextID int
	pool   map[string]*fakeSession
	closed []string
}

var _ Sessions = (*fakePool)(nil)

func newFakePool(sessions ...*fakeSession) *fakePool {
	p := &fakePool{max: 10, pool: make(map[string]*fakeSession)}
	for _, s := range sessions {
		p.pool[s.id] = s
	}
	return p
}

func (p *fakePool) Create(ctx context.Context, startURL string, stealth *bool) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pool) >= p.max {
		return nil, models.NewAgentError(
			models.ErrCodeSessionLimit,
			fmt.Sprintf("session limit reached (%d)", p.max),
			nil,
		)
	}
	p.nextID++
	s := newFakeSession(fmt.Sprintf("sess-%d", p.nextID))
	if startURL != "" {
		s.url = startURL
	}
	p.pool[s.id] = s
	return s, nil
}

func (p *fakePool) Get(id string) (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.pool[id]
	if !ok {
		return nil, false
	}
	return s, true
}

func (p *fakePool) Close(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pool[id]; !ok {
		return models.NewAgentError(models.ErrCodeSessionNotFound, "session not found", nil)
	}
	delete(p.pool, id)
	p.closed = append(p.closed, id)
	return nil
}

func (p *fakePool) List(ctx context.Context) []models.SessionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	infos := make([]models.SessionInfo, 0, len(p.pool))
	for _, s := range p.pool {
		infos = append(infos, s.Info(ctx))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (p *fakePool) Stats() models.SessionStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.SessionStats{MaxSessions: p.max, ActiveSessions: len(p.pool)}
}

func (p *fakePool) closedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.closed...)
}

// scriptedLLM returns its replies in order, one per Complete call.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
}

var _ llm.Client = (*scriptedLLM)(nil)

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", errors.New("scriptedLLM: no scripted reply left")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *scriptedLLM) ModelName() string { return "test-model" }

// staticRetriever always returns the same fragments.
type staticRetriever struct {
	frags []retriever.Fragment
}

var _ retriever.Retriever = (*staticRetriever)(nil)

func (r *staticRetriever) Name() string { return "static" }

func (r *staticRetriever) Retrieve(ctx context.Context, query, rawHTML string) ([]retriever.Fragment, error) {
	return r.frags, nil
}

// fakeLoader serves fixed HTML for sessionless extraction.
type fakeLoader struct {
	mu   sync.Mutex
	html string
	mode driver.RenderMode
	err  error
	urls []string
}

var _ PageLoader = (*fakeLoader)(nil)

func (l *fakeLoader) HTML(ctx context.Context, target string) (string, driver.RenderMode, error) {
	l.mu.Lock()
	l.urls = append(l.urls, target)
	l.mu.Unlock()
	if l.err != nil {
		return "", "", l.err
	}
	return l.html, l.mode, nil
}

// testDeps wires handler deps over fakes: real engines on top of the
// scripted LLM and a static retriever. Agents is left nil; objective tests
// install their own factory.
func testDeps(pool *fakePool, client llm.Client) Deps {
	retr := &staticRetriever{frags: []retriever.Fragment{
		{HTML: `<button id="go">Go</button>`, Text: "Go"},
		{HTML: `<p>The answer is 42.</p>`, Text: "The answer is 42."},
	}}

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = false

	return Deps{
		Sessions: pool,
		Engines: func(drv driver.Driver) *engine.Set {
			return engine.NewSet(drv, engine.Deps{
				LLM:       client,
				Retriever: retr,
				Config: config.EngineConfig{
					Attempts:    2,
					ActionDelay: time.Millisecond,
				},
			})
		},
		Loader:   &fakeLoader{html: `<html><body><p>The answer is 42.</p></body></html>`, mode: driver.RenderStatic},
		Answer:   engine.NewAnswerer(client, retr).Answer,
		Webhooks: webhook.NewNotifier(config.WebhookConfig{Timeout: time.Second}),
		Config:   cfg,
		Start:    time.Now(),
	}
}

// testRouter registers the handler routes the way the API router does,
// without the middleware chain.
func testRouter(d Deps) *gin.Engine {
	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.GET("/health", Health(d.Sessions, d.Start))
	v1.POST("/sessions", PostSession(d.Sessions))
	v1.GET("/sessions", GetSessions(d.Sessions))
	v1.GET("/sessions/:id", GetSession(d.Sessions))
	v1.DELETE("/sessions/:id", DeleteSession(d.Sessions))
	v1.POST("/sessions/:id/navigate", PostNavigate(d.Sessions))
	v1.POST("/run", Run(d))
	v1.POST("/objectives", PostObjective(d))
	v1.GET("/objectives/:id", GetObjective())
	v1.POST("/extract", Extract(d))
	return r
}

// doJSON performs one request against the test router and returns the
// recorder. A nil body sends no payload.
func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeInto unmarshals a recorded response body.
func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}
