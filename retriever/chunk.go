package retriever

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/webpilot/simhash"
)

const (
	defaultChunkTokens = 750
	defaultTopK        = 5

	// dedupDistance is the max SimHash Hamming distance at which two
	// fragments count as the same content.
	dedupDistance = 3
)

// noiseSelector matches elements that never contribute actionable content.
const noiseSelector = "script, style, noscript, template, iframe, svg, head, link, meta"

// Chunk splits a page snapshot into fragments of roughly maxTokens each.
// Elements small enough to fit the budget are packed greedily with their
// siblings; oversized elements are descended into. Repeated near-duplicate
// fragments (mirrored menus, stacked banners) are collapsed, keeping the
// first occurrence.
func Chunk(rawHTML string, maxTokens int) ([]Fragment, error) {
	if maxTokens <= 0 {
		maxTokens = defaultChunkTokens
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	doc.Find(noiseSelector).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	c := &chunker{budget: maxTokens}
	c.walk(root)

	return dedupFragments(c.frags), nil
}

type chunker struct {
	budget int
	frags  []Fragment
}

// walk packs the children of parent into budget-sized fragments, recursing
// into children that are too large to keep whole.
func (c *chunker) walk(parent *goquery.Selection) {
	var group []*goquery.Selection
	groupTokens := 0

	flush := func() {
		if len(group) == 0 {
			return
		}
		c.emit(parent, group)
		group = nil
		groupTokens = 0
	}

	parent.Children().Each(func(_ int, child *goquery.Selection) {
		tokens := EstimateTokens(fragmentText(child))
		if tokens == 0 {
			return
		}

		if tokens > c.budget {
			flush()
			if child.Children().Length() > 0 {
				c.walk(child)
			} else {
				// Indivisible leaf, keep it whole.
				c.emit(parent, []*goquery.Selection{child})
			}
			return
		}

		if groupTokens+tokens > c.budget {
			flush()
		}
		group = append(group, child)
		groupTokens += tokens
	})

	flush()
}

// emit records one fragment for the group. A single element is anchored by
// its own selector path; a multi-element group is anchored by the parent.
func (c *chunker) emit(parent *goquery.Selection, group []*goquery.Selection) {
	var htmlParts, textParts []string
	for _, s := range group {
		if h, err := goquery.OuterHtml(s); err == nil {
			htmlParts = append(htmlParts, h)
		}
		if t := fragmentText(s); t != "" {
			textParts = append(textParts, t)
		}
	}
	if len(htmlParts) == 0 {
		return
	}

	selector := cssPath(parent)
	if len(group) == 1 {
		selector = cssPath(group[0])
	}

	c.frags = append(c.frags, Fragment{
		Selector: selector,
		HTML:     strings.Join(htmlParts, "\n"),
		Text:     strings.Join(textParts, " "),
	})
}

// textAttrs carry user-visible text that Selection.Text misses. Without them
// a bare search box or icon button would look empty to the retriever.
var textAttrs = []string{"placeholder", "aria-label", "alt", "title", "value"}

// fragmentText returns the element's visible text plus attribute text from
// the element and its descendants, whitespace-collapsed.
func fragmentText(s *goquery.Selection) string {
	parts := strings.Fields(s.Text())

	gather := func(_ int, el *goquery.Selection) {
		for _, name := range textAttrs {
			if v, ok := el.Attr(name); ok {
				parts = append(parts, strings.Fields(v)...)
			}
		}
	}
	s.Each(gather)
	s.Find("*").Each(gather)

	return strings.Join(parts, " ")
}

// cssPath builds a selector from body down to the element. An element with a
// usable id becomes the anchor, shortening the path.
func cssPath(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}

	var parts []string
	for cur := s.First(); cur.Length() > 0; cur = cur.Parent() {
		name := goquery.NodeName(cur)
		if name == "" || name == "#document" || name == "html" {
			break
		}
		if name == "body" {
			parts = append(parts, "body")
			break
		}
		if id, ok := cur.Attr("id"); ok && safeCSSIdent(id) {
			parts = append(parts, "#"+id)
			break
		}

		part := name
		if cur.Parent().ChildrenFiltered(name).Length() > 1 {
			idx := cur.PrevAll().Filter(name).Length() + 1
			part = fmt.Sprintf("%s:nth-of-type(%d)", name, idx)
		}
		parts = append(parts, part)
	}

	// Built leaf-first, reverse into document order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

// safeCSSIdent reports whether id can appear in a selector without escaping.
func safeCSSIdent(id string) bool {
	if id == "" {
		return false
	}
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// dedupFragments collapses near-duplicate fragments, keeping document order.
func dedupFragments(frags []Fragment) []Fragment {
	if len(frags) < 2 {
		return frags
	}

	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.Text
	}

	keep := simhash.Dedup(texts, dedupDistance)
	if len(keep) == len(frags) {
		return frags
	}

	out := make([]Fragment, 0, len(keep))
	for _, idx := range keep {
		out = append(out, frags[idx])
	}
	return out
}
