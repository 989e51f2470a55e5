package main

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// codeSet remembers promotion codes. The bloom filter answers most misses
// without touching the exact set; a positive is confirmed against the set so
// false positives never drop a new code.
type codeSet struct {
	filter *bloom.BloomFilter
	exact  map[string]struct{}

	confirmations int
}

func newCodeSet(expected uint, fpr float64) *codeSet {
	if expected == 0 {
		expected = 1
	}
	return &codeSet{
		filter: bloom.NewWithEstimates(expected, fpr),
		exact:  make(map[string]struct{}),
	}
}

// Add records code and reports whether it was new. It is not safe for
// concurrent use.
func (s *codeSet) Add(code string) bool {
	code = normalizeCode(code)
	if s.filter.TestAndAddString(code) {
		s.confirmations++
		if _, ok := s.exact[code]; ok {
			return false
		}
	}
	s.exact[code] = struct{}{}
	return true
}

func (s *codeSet) Len() int {
	return len(s.exact)
}
