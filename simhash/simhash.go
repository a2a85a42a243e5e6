// Package simhash fingerprints short texts such as headlines so that
// near-duplicates can be dropped from a dataset.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"sync"
	"unicode"
)

// DefaultThreshold is the Hamming distance at or below which two
// headlines count as the same story.
const DefaultThreshold = 3

// Fingerprint computes a 64-bit SimHash of text. Tokens are lowercased
// words with punctuation removed, hashed with FNV-64a.
func Fingerprint(text string) uint64 {
	words := Tokens(text)
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

// Tokens splits text into lowercase words of letters and digits.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether the distance is within threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Seen remembers fingerprints and reports near-duplicates. It is safe for
// concurrent use.
type Seen struct {
	mu        sync.Mutex
	threshold int
	prints    []uint64
}

// NewSeen returns an empty set. A negative threshold means DefaultThreshold.
func NewSeen(threshold int) *Seen {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Seen{threshold: threshold}
}

// Add records text and reports whether it is new. Texts without any word
// are never treated as duplicates.
func (s *Seen) Add(text string) bool {
	fp := Fingerprint(text)
	if fp == 0 && len(Tokens(text)) == 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prints {
		if Similar(p, fp, s.threshold) {
			return false
		}
	}
	s.prints = append(s.prints, fp)
	return true
}

// Len returns how many distinct texts were recorded.
func (s *Seen) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prints)
}
