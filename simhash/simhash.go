// Package simhash provides 64-bit SimHash fingerprints for near-duplicate
// detection. The agent uses DOM fingerprints to notice when successive steps
// leave the page unchanged, and the retriever uses text fingerprints to drop
// near-identical fragments before ranking.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Fingerprint computes a 64-bit SimHash of the given text.
// Uses FNV-64a hash on word-level tokens with bit vector accumulation.
func Fingerprint(text string) uint64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int

	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}

	return fingerprint
}

// Distance returns the Hamming distance between two SimHash fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar returns true if the Hamming distance between two fingerprints
// is less than or equal to the threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Dedup returns the indices of texts to keep after collapsing near-duplicates.
// The first occurrence of each duplicate group wins; order is preserved.
// Empty texts are always kept so callers do not lose positional entries.
func Dedup(texts []string, threshold int) []int {
	keep := make([]int, 0, len(texts))
	seen := make([]uint64, 0, len(texts))

	for i, text := range texts {
		fp := Fingerprint(text)
		if fp == 0 {
			keep = append(keep, i)
			continue
		}

		dup := false
		for _, prev := range seen {
			if Similar(fp, prev, threshold) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}

		seen = append(seen, fp)
		keep = append(keep, i)
	}

	return keep
}
