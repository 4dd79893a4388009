package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// sessionInfo mirrors the Webpilot session API model.
type sessionInfo struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at"`
}

// sessionResponse mirrors the Webpilot session API response model.
type sessionResponse struct {
	Success bool         `json:"success"`
	Session *sessionInfo `json:"session"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// runResponse mirrors the Webpilot run API response model.
type runResponse struct {
	Success bool `json:"success"`
	Result  *struct {
		Instruction string `json:"instruction"`
		Code        string `json:"code"`
		Success     bool   `json:"success"`
		Output      string `json:"output"`
	} `json:"result"`
	Timing *struct {
		TotalMs  int64 `json:"total_ms"`
		EngineMs int64 `json:"engine_ms"`
	} `json:"timing"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// objectiveResponse mirrors the Webpilot objective API response.
type objectiveResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// objectiveStatusResponse mirrors the Webpilot objective status API response.
type objectiveStatusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Objective string `json:"objective"`
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
	Steps     []struct {
		Engine      string `json:"engine"`
		Instruction string `json:"instruction"`
		Thoughts    string `json:"thoughts"`
		Output      string `json:"output"`
		Status      string `json:"status"`
		Error       string `json:"error"`
	} `json:"steps"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// extractResponse mirrors the Webpilot extract API response.
type extractResponse struct {
	Success bool     `json:"success"`
	Output  string   `json:"output"`
	Sources []string `json:"sources"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("WEBPILOT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Optional: only needed when the API has auth enabled.
	apiKey := os.Getenv("WEBPILOT_API_KEY")

	s := server.NewMCPServer(
		"webpilot",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	createSessionTool := mcp.NewTool("create_session",
		mcp.WithDescription("Open a new browser session and return its ID. Subsequent tools act on that session. Optionally navigates to a starting URL."),
		mcp.WithString("url",
			mcp.Description("Optional page to open right after the session starts"),
		),
	)
	s.AddTool(createSessionTool, handleCreateSession(apiURL, apiKey))

	navigateTool := mcp.NewTool("navigate",
		mcp.WithDescription("Load a URL in an existing browser session's focused tab."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The session to navigate"),
		),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to load"),
		),
	)
	s.AddTool(navigateTool, handleNavigate(apiURL, apiKey))

	runInstructionTool := mcp.NewTool("run_instruction",
		mcp.WithDescription("Execute one natural-language instruction against a browser session: click, type, scroll, switch tabs, or answer a question about the current page."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The session to act on"),
		),
		mcp.WithString("instruction",
			mcp.Required(),
			mcp.Description("The instruction in natural language, e.g. 'Click on the Login button'"),
		),
		mcp.WithString("engine",
			mcp.Description("Engine to use: 'Navigation Engine' (default, generates and runs page actions), 'Navigation Controls' (SCROLL_DOWN / SCROLL_UP / BACK / WAIT / SCAN / MAXIMIZE_WINDOW / SWITCH_TAB <n>), or 'Extraction Engine' (answers a question about the page)"),
			mcp.Enum("Navigation Engine", "Navigation Controls", "Extraction Engine"),
		),
	)
	s.AddTool(runInstructionTool, handleRunInstruction(apiURL, apiKey))

	runObjectiveTool := mcp.NewTool("run_objective",
		mcp.WithDescription("Run a multi-step objective: the agent plans, navigates and extracts on its own until the objective is reached. Blocks until the run finishes and returns the answer plus the step trajectory."),
		mcp.WithString("objective",
			mcp.Required(),
			mcp.Description("The high-level goal in natural language, e.g. 'Find the price of the cheapest laptop'"),
		),
		mcp.WithString("url",
			mcp.Description("The starting page. Required unless session_id points at a session that is already on a page"),
		),
		mcp.WithString("session_id",
			mcp.Description("Reuse an existing session instead of creating one"),
		),
		mcp.WithNumber("max_steps",
			mcp.Description("Maximum number of agent steps (default: 10, max: 50)"),
		),
	)
	s.AddTool(runObjectiveTool, handleRunObjective(apiURL, apiKey))

	extractPageTool := mcp.NewTool("extract_page",
		mcp.WithDescription("Answer a question about a web page without interacting with it. Works on a live session's current page or on a URL fetched on the fly."),
		mcp.WithString("instruction",
			mcp.Required(),
			mcp.Description("The question or extraction request, e.g. 'List all article headlines'"),
		),
		mcp.WithString("url",
			mcp.Description("The page to extract from. Exactly one of url and session_id must be set"),
		),
		mcp.WithString("session_id",
			mcp.Description("Extract from the live page of this session instead of fetching a URL"),
		),
	)
	s.AddTool(extractPageTool, handleExtractPage(apiURL, apiKey))

	closeSessionTool := mcp.NewTool("close_session",
		mcp.WithDescription("Close a browser session and free its slot in the pool."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The session to close"),
		),
	)
	s.AddTool(closeSessionTool, handleCloseSession(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the Webpilot API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job endpoint until status is no longer "processing" or context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, endpoint string) ([]byte, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			if apiKey != "" {
				req.Header.Set("X-API-Key", apiKey)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}

			// Quick check if still processing.
			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			if status.Status != "processing" {
				return body, nil
			}
		}
	}
}

// apiError formats the error detail of a failed API response.
func apiError(fallback string, detail *struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}) string {
	if detail == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", detail.Code, detail.Message)
}

func handleCreateSession(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := map[string]interface{}{}
		if url := request.GetString("url", ""); url != "" {
			payload["url"] = url
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/sessions", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session request failed: %v", err)), nil
		}

		var sessResp sessionResponse
		if err := json.Unmarshal(respBody, &sessResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse session response: %v", err)), nil
		}

		if !sessResp.Success || sessResp.Session == nil {
			return mcp.NewToolResultError(apiError("session creation failed", sessResp.Error)), nil
		}

		sess := sessResp.Session
		result := fmt.Sprintf("Session created: %s", sess.ID)
		if sess.URL != "" {
			result += fmt.Sprintf("\nURL: %s\nTitle: %s", sess.URL, sess.Title)
		}
		return mcp.NewToolResultText(result), nil
	}
}

func handleNavigate(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey,
			"/api/v1/sessions/"+sessionID+"/navigate", map[string]string{"url": url})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("navigate request failed: %v", err)), nil
		}

		var sessResp sessionResponse
		if err := json.Unmarshal(respBody, &sessResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse navigate response: %v", err)), nil
		}

		if !sessResp.Success || sessResp.Session == nil {
			return mcp.NewToolResultError(apiError("navigation failed", sessResp.Error)), nil
		}

		sess := sessResp.Session
		return mcp.NewToolResultText(fmt.Sprintf("Navigated.\nURL: %s\nTitle: %s", sess.URL, sess.Title)), nil
	}
}

func handleRunInstruction(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 320 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		instruction, err := request.RequireString("instruction")
		if err != nil {
			return mcp.NewToolResultError("instruction is required"), nil
		}

		payload := map[string]interface{}{
			"session_id":  sessionID,
			"instruction": instruction,
		}
		if engine := request.GetString("engine", ""); engine != "" {
			payload["engine"] = engine
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/run", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run request failed: %v", err)), nil
		}

		var runResp runResponse
		if err := json.Unmarshal(respBody, &runResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse run response: %v", err)), nil
		}

		if !runResp.Success {
			return mcp.NewToolResultError(apiError("instruction failed", runResp.Error)), nil
		}

		var sb strings.Builder
		sb.WriteString("Instruction executed.\n")
		if runResp.Result != nil {
			if runResp.Result.Output != "" {
				sb.WriteString("Output:\n" + runResp.Result.Output + "\n")
			}
			if runResp.Result.Code != "" {
				sb.WriteString("Program:\n" + runResp.Result.Code + "\n")
			}
		}
		if runResp.Timing != nil {
			sb.WriteString(fmt.Sprintf("Took %dms", runResp.Timing.TotalMs))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleRunObjective(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		objective, err := request.RequireString("objective")
		if err != nil {
			return mcp.NewToolResultError("objective is required"), nil
		}

		payload := map[string]interface{}{
			"objective": objective,
		}
		if url := request.GetString("url", ""); url != "" {
			payload["url"] = url
		}
		if sessionID := request.GetString("session_id", ""); sessionID != "" {
			payload["session_id"] = sessionID
		}
		args := request.GetArguments()
		if maxSteps, ok := args["max_steps"]; ok {
			payload["max_steps"] = maxSteps
		}

		// POST to create the objective job.
		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/objectives", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("objective request failed: %v", err)), nil
		}

		var objResp objectiveResponse
		if err := json.Unmarshal(respBody, &objResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse objective response: %v", err)), nil
		}

		if objResp.ID == "" {
			return mcp.NewToolResultError("objective job creation failed"), nil
		}

		// Poll for completion.
		resultBody, err := pollJobCompletion(ctx, client, apiURL, apiKey, "/api/v1/objectives/"+objResp.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling objective failed: %v", err)), nil
		}

		var statusResp objectiveStatusResponse
		if err := json.Unmarshal(resultBody, &statusResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse objective status: %v", err)), nil
		}

		// Format the trajectory.
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Objective %s: %s (%d steps)\n", statusResp.ID, statusResp.Status, len(statusResp.Steps)))
		if statusResp.SessionID != "" {
			sb.WriteString(fmt.Sprintf("Session: %s\n", statusResp.SessionID))
		}
		sb.WriteString("\n")

		for i, step := range statusResp.Steps {
			sb.WriteString(fmt.Sprintf("--- Step %d [%s] %s ---\n", i+1, step.Engine, step.Status))
			sb.WriteString(step.Instruction + "\n")
			if step.Output != "" {
				sb.WriteString("Output: " + step.Output + "\n")
			}
			if step.Error != "" {
				sb.WriteString("Error: " + step.Error + "\n")
			}
			sb.WriteString("\n")
		}

		if statusResp.Status == "completed" {
			sb.WriteString("Answer:\n" + statusResp.Output)
		} else {
			sb.WriteString(apiError("objective failed", statusResp.Error))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleExtractPage(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 320 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		instruction, err := request.RequireString("instruction")
		if err != nil {
			return mcp.NewToolResultError("instruction is required"), nil
		}

		url := request.GetString("url", "")
		sessionID := request.GetString("session_id", "")
		if (url == "") == (sessionID == "") {
			return mcp.NewToolResultError("exactly one of url and session_id is required"), nil
		}

		payload := map[string]interface{}{
			"instruction": instruction,
		}
		if url != "" {
			payload["url"] = url
		}
		if sessionID != "" {
			payload["session_id"] = sessionID
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/extract", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extract request failed: %v", err)), nil
		}

		var extResp extractResponse
		if err := json.Unmarshal(respBody, &extResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse extract response: %v", err)), nil
		}

		if !extResp.Success {
			return mcp.NewToolResultError(apiError("extraction failed", extResp.Error)), nil
		}

		result := extResp.Output
		if len(extResp.Sources) > 0 {
			result += "\n\n---\nSources:\n" + strings.Join(extResp.Sources, "\n")
		}
		return mcp.NewToolResultText(result), nil
	}
}

func handleCloseSession(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
			apiURL+"/api/v1/sessions/"+sessionID, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("close request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var closeResp struct {
			Success bool `json:"success"`
			Error   *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &closeResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse close response: %v", err)), nil
		}

		if !closeResp.Success {
			return mcp.NewToolResultError(apiError("close failed", closeResp.Error)), nil
		}
		return mcp.NewToolResultText("Session " + sessionID + " closed."), nil
	}
}
