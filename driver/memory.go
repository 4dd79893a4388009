package driver

import (
	"sync"
	"time"
)

// RenderMode records how a domain's pages must be fetched for extraction.
type RenderMode string

const (
	// RenderStatic means a plain HTTP fetch returns usable HTML.
	RenderStatic RenderMode = "static"

	// RenderBrowser means the domain serves a JS shell and needs a real
	// page load.
	RenderBrowser RenderMode = "browser"
)

// renderEntry stores the render mode for a domain with a TTL.
type renderEntry struct {
	mode      RenderMode
	expiresAt time.Time
}

// RenderMemory remembers which fetch path worked for each domain, so repeat
// extractions skip the static-fetch probe on domains known to need a
// browser. Entries expire after the configured TTL and are cleaned up
// periodically.
type RenderMemory struct {
	store sync.Map // domain (string) -> *renderEntry
	ttl   time.Duration
	done  chan struct{}
}

// NewRenderMemory creates a RenderMemory with the given TTL and starts a
// background goroutine that prunes expired entries every hour.
func NewRenderMemory(ttl time.Duration) *RenderMemory {
	rm := &RenderMemory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go rm.cleanupLoop()
	return rm
}

// Get returns the remembered mode for a domain, or "" if not found / expired.
func (rm *RenderMemory) Get(domain string) RenderMode {
	val, ok := rm.store.Load(domain)
	if !ok {
		return ""
	}
	entry := val.(*renderEntry)
	if time.Now().After(entry.expiresAt) {
		rm.store.Delete(domain)
		return ""
	}
	return entry.mode
}

// Set records which fetch path produced usable HTML for a domain.
func (rm *RenderMemory) Set(domain string, mode RenderMode) {
	rm.store.Store(domain, &renderEntry{
		mode:      mode,
		expiresAt: time.Now().Add(rm.ttl),
	})
}

// Delete removes the memory for a domain (e.g. after the remembered path fails).
func (rm *RenderMemory) Delete(domain string) {
	rm.store.Delete(domain)
}

// Stop terminates the background cleanup goroutine.
func (rm *RenderMemory) Stop() {
	close(rm.done)
}

// cleanupLoop runs every hour, deleting expired entries.
func (rm *RenderMemory) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-rm.done:
			return
		case <-ticker.C:
			now := time.Now()
			rm.store.Range(func(key, value any) bool {
				entry := value.(*renderEntry)
				if now.After(entry.expiresAt) {
					rm.store.Delete(key)
				}
				return true
			})
		}
	}
}
