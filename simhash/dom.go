package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// FingerprintDOM computes a SimHash fingerprint of the DOM structure.
// Only tag names in document order contribute; text content and attributes
// are ignored, so two observations of the same page fingerprint identically
// even when dynamic text (timestamps, counters) differs. The agent compares
// successive fingerprints to detect steps that changed nothing.
func FingerprintDOM(htmlStr string) uint64 {
	tags := tagSequence(htmlStr)
	if len(tags) == 0 {
		return 0
	}

	grams := shingles(tags, 3)
	if len(grams) == 0 {
		// Too few tags for trigrams, fingerprint the raw tag sequence.
		return Fingerprint(strings.Join(tags, " "))
	}

	return Fingerprint(strings.Join(grams, " "))
}

// tagSequence walks HTML with the tokenizer and collects open tag names in order.
func tagSequence(htmlStr string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	var tags []string

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			tags = append(tags, string(tn))
		}
	}
}

// shingles creates n-gram shingles from a slice of tokens.
func shingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}

	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}
