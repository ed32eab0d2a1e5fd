// Package dedupe suppresses rows whose identity key was already emitted
// during the current run.
package dedupe

import "sync"

// SeenSet is the per-run set of emitted identity keys. Check-and-insert is
// a single operation under the lock, so two concurrent rows with the same
// key can never both win. First seen wins; later duplicates are
// suppressed, not merged.
//
// The set lives for one pipeline run and is discarded afterwards; nothing
// persists across runs.
type SeenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[string]struct{})}
}

// Admit atomically checks and inserts key. It reports true exactly once
// per key per run.
func (s *SeenSet) Admit(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.keys[key]; dup {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Len reports how many distinct keys have been admitted.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
