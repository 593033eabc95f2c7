package tracker

import "sort"

// State maps item identities to their last known price. It is owned by a
// single writer for the duration of a run and is not safe for concurrent use.
type State struct {
	entries map[string]Entry
}

// NewState returns an empty State.
func NewState() *State {
	return &State{entries: make(map[string]Entry)}
}

// Len returns the number of tracked identities.
func (s *State) Len() int {
	return len(s.entries)
}

// Lookup returns the entry for url, matching case-insensitively.
func (s *State) Lookup(url string) (Entry, bool) {
	e, ok := s.entries[Key(url)]
	return e, ok
}

// Upsert inserts or replaces the entry keyed by e.URL.
func (s *State) Upsert(e Entry) {
	if s.entries == nil {
		s.entries = make(map[string]Entry)
	}
	s.entries[Key(e.URL)] = e
}

// Entries returns all entries ordered by identity.
func (s *State) Entries() []Entry {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.entries[k])
	}
	return out
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	cp := NewState()
	for k, v := range s.entries {
		cp.entries[k] = v
	}
	return cp
}
