package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/use-agent/webpilot/driver"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/retriever"
)

// fakeDriver records calls and serves canned pages. Hooks override the
// default no-op behavior per test.
type fakeDriver struct {
	mu       sync.Mutex
	calls    []string
	fullPage bool

	html        string
	url         string
	snapshotErr error
	execErr     error

	// execFunc, when set, decides each ExecuteProgram call instead of
	// execErr.
	execFunc func(steps []models.ProgramStep) error

	// snapshotFullPage records the snapshot mode at Snapshot time.
	snapshotFullPage bool

	executed [][]models.ProgramStep
}

var _ driver.Driver = (*fakeDriver)(nil)

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.record("Navigate")
	d.url = url
	return nil
}

func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	d.record("CurrentURL")
	return d.url, nil
}

func (d *fakeDriver) Title(ctx context.Context) (string, error) {
	d.record("Title")
	return "fake page", nil
}

func (d *fakeDriver) Snapshot(ctx context.Context) (string, error) {
	d.record("Snapshot")
	d.snapshotFullPage = d.fullPage
	if d.snapshotErr != nil {
		return "", d.snapshotErr
	}
	return d.html, nil
}

func (d *fakeDriver) Tabs(ctx context.Context) ([]models.Tab, int, error) {
	d.record("Tabs")
	return []models.Tab{{URL: d.url, Title: "fake page"}}, 0, nil
}

func (d *fakeDriver) ExecuteProgram(ctx context.Context, steps []models.ProgramStep) error {
	d.record("ExecuteProgram")
	d.executed = append(d.executed, steps)
	if d.execFunc != nil {
		return d.execFunc(steps)
	}
	return d.execErr
}

func (d *fakeDriver) ScrollDown(ctx context.Context) error     { d.record("ScrollDown"); return nil }
func (d *fakeDriver) ScrollUp(ctx context.Context) error       { d.record("ScrollUp"); return nil }
func (d *fakeDriver) Back(ctx context.Context) error           { d.record("Back"); return nil }
func (d *fakeDriver) ScanPage(ctx context.Context) error       { d.record("ScanPage"); return nil }
func (d *fakeDriver) MaximizeWindow(ctx context.Context) error { d.record("MaximizeWindow"); return nil }

func (d *fakeDriver) SwitchTab(ctx context.Context, index int) error {
	d.record("SwitchTab")
	return nil
}

func (d *fakeDriver) SetFullPage(full bool) { d.fullPage = full }
func (d *fakeDriver) FullPage() bool        { return d.fullPage }

func (d *fakeDriver) Capability() string { return "fake driver capability" }

func (d *fakeDriver) called(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.calls {
		if c == name {
			return true
		}
	}
	return false
}

// fakeLLM serves scripted replies in order and records the prompts it saw.
type fakeLLM struct {
	replies []string
	err     error
	prompts []string
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("fakeLLM: no scripted reply left")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeLLM) ModelName() string { return "fake-model" }

// fakeRetriever returns fixed fragments regardless of query.
type fakeRetriever struct {
	frags   []retriever.Fragment
	err     error
	queries []string
}

func (f *fakeRetriever) Name() string { return "fake-retriever" }

func (f *fakeRetriever) Retrieve(ctx context.Context, query, rawHTML string) ([]retriever.Fragment, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.frags, nil
}
