// Command smoke walks the whole Webpilot API against a live deployment:
// session lifecycle, navigation controls, extraction and an optional
// objective run. It exits non-zero when any step fails, so it can gate a
// deploy.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL    = flag.String("api-url", "http://localhost:8080", "Webpilot API base URL")
	apiKey    = flag.String("api-key", "", "API key for authenticated requests")
	target    = flag.String("target", "https://example.com", "Page used for the session and extraction checks")
	objective = flag.String("objective", "", "Optional objective to run end to end (needs a configured LLM)")
	skipLLM   = flag.Bool("skip-llm", false, "Check only the deterministic steps, skip extraction")
)

// --- Response types (mirrors models package) ---

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions struct {
		ActiveSessions int `json:"active_sessions"`
		MaxSessions    int `json:"max_sessions"`
	} `json:"sessions"`
}

type sessionResponse struct {
	Success bool `json:"success"`
	Session *struct {
		ID    string `json:"id"`
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"session"`
	Error *errorDetail `json:"error"`
}

type sessionListResponse struct {
	Success  bool `json:"success"`
	Sessions []struct {
		ID string `json:"id"`
	} `json:"sessions"`
}

type runResponse struct {
	Success bool `json:"success"`
	Result  *struct {
		Code   string `json:"code"`
		Output string `json:"output"`
	} `json:"result"`
	Timing *struct {
		TotalMs int64 `json:"total_ms"`
	} `json:"timing"`
	Error *errorDetail `json:"error"`
}

type extractResponse struct {
	Success bool         `json:"success"`
	Output  string       `json:"output"`
	Sources []string     `json:"sources"`
	Error   *errorDetail `json:"error"`
}

type objectiveResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output string       `json:"output"`
	Steps  []struct{}   `json:"steps"`
	Error  *errorDetail `json:"error"`
}

// stepResult records one smoke step for the summary table.
type stepResult struct {
	Name     string
	Duration time.Duration
	Detail   string
	Err      error
	Skipped  bool
}

func main() {
	flag.Parse()

	fmt.Println("=== Webpilot Smoke Suite ===")
	fmt.Printf("API URL:  %s\n", *apiURL)
	fmt.Printf("Target:   %s\n", *target)
	fmt.Println()

	client := &http.Client{Timeout: 120 * time.Second}
	var results []stepResult
	var sessionID string

	run := func(name string, fn func() (string, error)) bool {
		fmt.Printf("%-28s ... ", name)
		start := time.Now()
		detail, err := fn()
		r := stepResult{Name: name, Duration: time.Since(start), Detail: detail, Err: err}
		results = append(results, r)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			return false
		}
		fmt.Printf("OK  %dms  %s\n", r.Duration.Milliseconds(), detail)
		return true
	}
	skip := func(name, reason string) {
		fmt.Printf("%-28s ... SKIPPED (%s)\n", name, reason)
		results = append(results, stepResult{Name: name, Detail: reason, Skipped: true})
	}

	// ── Health ──────────────────────────────────────────────────────
	run("health", func() (string, error) {
		var hr healthResponse
		if err := getJSON(client, "/api/v1/health", &hr); err != nil {
			return "", err
		}
		if hr.Status != "healthy" && hr.Status != "degraded" {
			return "", fmt.Errorf("unexpected status %q", hr.Status)
		}
		return fmt.Sprintf("%s v%s, %d/%d sessions", hr.Status, hr.Version,
			hr.Sessions.ActiveSessions, hr.Sessions.MaxSessions), nil
	})

	// ── Session lifecycle ───────────────────────────────────────────
	ok := run("create session", func() (string, error) {
		var sr sessionResponse
		if err := postJSON(client, "/api/v1/sessions", map[string]string{"url": *target}, &sr); err != nil {
			return "", err
		}
		if !sr.Success || sr.Session == nil {
			return "", respError("session not created", sr.Error)
		}
		sessionID = sr.Session.ID
		return sessionID, nil
	})
	if !ok {
		// Nothing else can run without a session.
		printSummary(results)
		os.Exit(1)
	}

	run("list sessions", func() (string, error) {
		var lr sessionListResponse
		if err := getJSON(client, "/api/v1/sessions", &lr); err != nil {
			return "", err
		}
		for _, s := range lr.Sessions {
			if s.ID == sessionID {
				return fmt.Sprintf("%d active", len(lr.Sessions)), nil
			}
		}
		return "", fmt.Errorf("session %s missing from list", sessionID)
	})

	run("navigate", func() (string, error) {
		var sr sessionResponse
		if err := postJSON(client, "/api/v1/sessions/"+sessionID+"/navigate",
			map[string]string{"url": *target}, &sr); err != nil {
			return "", err
		}
		if !sr.Success || sr.Session == nil {
			return "", respError("navigation failed", sr.Error)
		}
		return sr.Session.Title, nil
	})

	run("scroll (controls engine)", func() (string, error) {
		var rr runResponse
		payload := map[string]string{
			"session_id":  sessionID,
			"engine":      "Navigation Controls",
			"instruction": "SCROLL_DOWN",
		}
		if err := postJSON(client, "/api/v1/run", payload, &rr); err != nil {
			return "", err
		}
		if !rr.Success || rr.Result == nil {
			return "", respError("run failed", rr.Error)
		}
		return rr.Result.Code, nil
	})

	// ── LLM-backed steps ────────────────────────────────────────────
	const question = "What is this page about? Answer in one sentence."

	if *skipLLM {
		skip("extract from session", "-skip-llm")
		skip("extract from url", "-skip-llm")
	} else {
		run("extract from session", func() (string, error) {
			var er extractResponse
			payload := map[string]string{"session_id": sessionID, "instruction": question}
			if err := postJSON(client, "/api/v1/extract", payload, &er); err != nil {
				return "", err
			}
			if !er.Success {
				return "", respError("extraction failed", er.Error)
			}
			return fmt.Sprintf("%d sources, %d chars", len(er.Sources), len(er.Output)), nil
		})

		run("extract from url", func() (string, error) {
			var er extractResponse
			payload := map[string]string{"url": *target, "instruction": question}
			if err := postJSON(client, "/api/v1/extract", payload, &er); err != nil {
				return "", err
			}
			if !er.Success {
				return "", respError("extraction failed", er.Error)
			}
			return fmt.Sprintf("%d sources, %d chars", len(er.Sources), len(er.Output)), nil
		})
	}

	if *objective == "" {
		skip("objective", "no -objective given")
	} else {
		run("objective", func() (string, error) {
			var or objectiveResponse
			payload := map[string]interface{}{"objective": *objective, "url": *target}
			if err := postJSON(client, "/api/v1/objectives", payload, &or); err != nil {
				return "", err
			}
			if or.ID == "" {
				return "", respError("objective not accepted", or.Error)
			}

			deadline := time.Now().Add(5 * time.Minute)
			for time.Now().Before(deadline) {
				time.Sleep(2 * time.Second)
				if err := getJSON(client, "/api/v1/objectives/"+or.ID, &or); err != nil {
					return "", err
				}
				if or.Status != "processing" {
					break
				}
			}

			if or.Status != "completed" {
				return "", respError(fmt.Sprintf("objective ended %s", or.Status), or.Error)
			}
			return fmt.Sprintf("%d steps, %d chars", len(or.Steps), len(or.Output)), nil
		})
	}

	// ── Teardown ────────────────────────────────────────────────────
	run("close session", func() (string, error) {
		var cr struct {
			Success bool         `json:"success"`
			Error   *errorDetail `json:"error"`
		}
		if err := deleteJSON(client, "/api/v1/sessions/"+sessionID, &cr); err != nil {
			return "", err
		}
		if !cr.Success {
			return "", respError("close failed", cr.Error)
		}
		return "closed", nil
	})

	run("session gone", func() (string, error) {
		req, err := newRequest(http.MethodGet, "/api/v1/sessions/"+sessionID, nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			return "", fmt.Errorf("expected 404, got %d", resp.StatusCode)
		}
		return "404", nil
	})

	failed := printSummary(results)
	if failed > 0 {
		os.Exit(1)
	}
}

func printSummary(results []stepResult) int {
	fmt.Println()
	fmt.Println(strings.Repeat("─", 70))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Step\tResult\tLatency\tDetail\n")
	fmt.Fprintf(w, "────\t──────\t───────\t──────\n")

	var failed int
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Fprintf(w, "%s\tSKIP\t-\t%s\n", r.Name, r.Detail)
		case r.Err != nil:
			failed++
			fmt.Fprintf(w, "%s\tFAIL\t%dms\t%v\n", r.Name, r.Duration.Milliseconds(), r.Err)
		default:
			fmt.Fprintf(w, "%s\tPASS\t%dms\t%s\n", r.Name, r.Duration.Milliseconds(), r.Detail)
		}
	}
	w.Flush()
	fmt.Println(strings.Repeat("─", 70))

	if failed > 0 {
		fmt.Printf("%d step(s) failed\n", failed)
	} else {
		fmt.Println("All steps passed")
	}
	return failed
}

// --- HTTP helpers ---

func newRequest(method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, *apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}
	return req, nil
}

func doJSON(client *http.Client, method, path string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := newRequest(method, path, body)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getJSON(client *http.Client, path string, out interface{}) error {
	return doJSON(client, http.MethodGet, path, nil, out)
}

func postJSON(client *http.Client, path string, payload, out interface{}) error {
	return doJSON(client, http.MethodPost, path, payload, out)
}

func deleteJSON(client *http.Client, path string, out interface{}) error {
	return doJSON(client, http.MethodDelete, path, nil, out)
}

func respError(fallback string, detail *errorDetail) error {
	if detail == nil {
		return fmt.Errorf("%s", fallback)
	}
	return fmt.Errorf("[%s] %s", detail.Code, detail.Message)
}
