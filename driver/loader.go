package driver

import (
	"context"
	"log/slog"
	"net/url"
)

// Loader fetches page HTML for extraction-only requests. It tries the cheap
// static fetch first and escalates to a transient browser page when the body
// looks like a JS shell, remembering the outcome per domain.
type Loader struct {
	fetcher *StaticFetcher
	manager *Manager
	memory  *RenderMemory
}

// NewLoader wires a loader from its fetch paths and the render memory.
func NewLoader(fetcher *StaticFetcher, manager *Manager, memory *RenderMemory) *Loader {
	return &Loader{fetcher: fetcher, manager: manager, memory: memory}
}

// HTML returns rendered HTML for the target URL and the mode that produced it.
func (l *Loader) HTML(ctx context.Context, target string) (string, RenderMode, error) {
	domain := extractDomain(target)

	// Domains known to serve JS shells skip the static probe.
	if l.memory.Get(domain) == RenderBrowser {
		html, err := l.manager.TransientHTML(ctx, target)
		if err != nil {
			// Memory entry failed; drop it so the next call probes again.
			l.memory.Delete(domain)
			return "", "", err
		}
		return html, RenderBrowser, nil
	}

	page, err := l.fetcher.Fetch(ctx, target)
	if err == nil && !page.NeedsBrowser {
		l.memory.Set(domain, RenderStatic)
		return page.HTML, RenderStatic, nil
	}
	if err != nil {
		slog.Debug("static fetch failed, escalating to browser", "url", target, "error", err)
	} else {
		slog.Debug("static fetch returned a JS shell, escalating to browser", "url", target)
	}

	html, browserErr := l.manager.TransientHTML(ctx, target)
	if browserErr != nil {
		return "", "", browserErr
	}
	l.memory.Set(domain, RenderBrowser)
	return html, RenderBrowser, nil
}

// extractDomain returns the hostname of a URL, or the input itself when it
// does not parse.
func extractDomain(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return target
	}
	return u.Hostname()
}
