package engine

import (
	"context"
	"fmt"
	"log/slog"
	nurl "net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/webpilot/driver"
	"github.com/use-agent/webpilot/llm"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/retriever"
)

// minContentLength is the minimum readability TextContent length (in
// characters) for the extraction to be considered valid. Below this
// threshold we assume the algorithm missed the main content and fall back
// to the raw document.
const minContentLength = 50

const answerPrompt = `Answer the question using only the page content below.
If the content does not contain the answer, say so plainly.

Page content:
%s

Question: %s

Answer:`

// Extraction answers read-only questions about the current page: main
// content extraction, fragment retrieval for the question, and a grounded
// answer completion. It never interacts with the page.
type Extraction struct {
	driver    driver.Driver
	llm       llm.Client
	retriever retriever.Retriever
	markdown  *converter.Converter
}

// NewExtraction creates the extraction engine for one driver.
func NewExtraction(drv driver.Driver, client llm.Client, retr retriever.Retriever) *Extraction {
	return &Extraction{
		driver:    drv,
		llm:       client,
		retriever: retr,
		markdown:  newMarkdownConverter(),
	}
}

// NewAnswerer creates an extraction engine detached from any driver, for
// answering over caller-supplied HTML via Answer. AnswerPage and
// ExecuteInstruction must not be used on it.
func NewAnswerer(client llm.Client, retr retriever.Retriever) *Extraction {
	return &Extraction{
		llm:       client,
		retriever: retr,
		markdown:  newMarkdownConverter(),
	}
}

// Name implements Engine.
func (e *Extraction) Name() string {
	return ExtractionName
}

// ExecuteInstruction answers the instruction from the current page.
func (e *Extraction) ExecuteInstruction(ctx context.Context, instruction string) (*models.ActionResult, error) {
	start := time.Now()

	answer, sources, err := e.AnswerPage(ctx, instruction)
	if err != nil {
		return &models.ActionResult{Instruction: instruction, Success: false}, err
	}

	slog.Info("extraction complete",
		"instruction", instruction,
		"sources", len(sources),
		"durationMs", time.Since(start).Milliseconds(),
	)
	return &models.ActionResult{
		Instruction: instruction,
		Success:     true,
		Output:      answer,
	}, nil
}

// AnswerPage answers the instruction from the driver's live page, plus the
// markdown sources the answer was grounded on.
func (e *Extraction) AnswerPage(ctx context.Context, instruction string) (string, []string, error) {
	// Extraction always reads the whole document, whatever snapshot mode
	// the navigation engines left the driver in.
	prev := e.driver.FullPage()
	e.driver.SetFullPage(true)
	html, err := e.driver.Snapshot(ctx)
	e.driver.SetFullPage(prev)
	if err != nil {
		return "", nil, err
	}

	sourceURL, _ := e.driver.CurrentURL(ctx)
	return e.Answer(ctx, instruction, html, sourceURL)
}

// Answer runs the extraction pipeline over the given HTML: readability main
// content (raw-HTML fallback), fragment retrieval for the question,
// markdown rendering, answer completion. Returns the answer plus the
// markdown sources it was grounded on.
func (e *Extraction) Answer(ctx context.Context, instruction, rawHTML, sourceURL string) (string, []string, error) {
	content := e.mainContent(rawHTML, sourceURL)

	frags, err := e.retriever.Retrieve(ctx, instruction, content)
	if err != nil {
		return "", nil, err
	}
	if len(frags) == 0 {
		return "", nil, models.NewAgentError(
			models.ErrCodeExtraction,
			"no content fragments retrieved from page",
			nil,
		)
	}

	sources := e.renderFragments(frags, sourceURL)

	answer, err := e.llm.Complete(ctx, fmt.Sprintf(answerPrompt,
		strings.Join(sources, "\n\n---\n\n"), instruction))
	if err != nil {
		return "", nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", nil, models.NewAgentError(
			models.ErrCodeExtraction,
			"empty answer from model",
			nil,
		)
	}
	return answer, sources, nil
}

// mainContent runs the Mozilla Readability algorithm on the raw document.
// The API must never fail just because readability choked, so every failure
// path falls back to the raw HTML.
func (e *Extraction) mainContent(rawHTML, sourceURL string) string {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL, using raw HTML",
			"url", sourceURL, "error", err,
		)
		return rawHTML
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed, using raw HTML",
			"url", sourceURL, "error", err,
		)
		return rawHTML
	}

	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		slog.Debug("readability: content too short, using raw HTML",
			"url", sourceURL, "length", len(article.TextContent),
		)
		return rawHTML
	}
	return article.Content
}

// renderFragments converts retrieved fragments to Markdown for the answer
// prompt, falling back to a fragment's plain text when conversion fails.
func (e *Extraction) renderFragments(frags []retriever.Fragment, sourceURL string) []string {
	sources := make([]string, 0, len(frags))
	for _, frag := range frags {
		md, err := e.markdown.ConvertString(frag.HTML, converter.WithDomain(sourceURL))
		if err != nil || strings.TrimSpace(md) == "" {
			md = frag.Text
		}
		sources = append(sources, strings.TrimSpace(md))
	}
	return sources
}

// newMarkdownConverter creates a reusable, goroutine-safe Converter:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta,
//     link, input, textarea and HTML comments.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin: preserves table structure with minimal cell padding
//     to save tokens.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}
