package redemption

import (
	"slices"
	"sync"
)

// Selection is the set of variants a customer has ticked to pay with coins.
// It belongs to exactly one view, lives as long as that view, and is never
// persisted. It is a request for the next commit, not a record of one.
type Selection struct {
	mu       sync.RWMutex
	selected map[string]bool
	disposed bool
}

func NewSelection() *Selection {
	return &Selection{selected: make(map[string]bool)}
}

// Toggle flips a variant and reports its new state.
func (s *Selection) Toggle(variantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || variantID == "" {
		return false
	}
	s.selected[variantID] = !s.selected[variantID]
	return s.selected[variantID]
}

func (s *Selection) IsSelected(variantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[variantID]
}

// SelectedIDs returns the selected variants, sorted. It is never nil, so an
// empty selection is still sent as an explicit empty list.
func (s *Selection) SelectedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.selected))
	for id, on := range s.selected {
		if on {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Retain drops selected variants that are no longer in the cart.
func (s *Selection) Retain(cartVariantIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.selected {
		if !slices.Contains(cartVariantIDs, id) {
			delete(s.selected, id)
		}
	}
}

func (s *Selection) Clear() {
	s.mu.Lock()
	s.selected = make(map[string]bool)
	s.mu.Unlock()
}

// Dispose clears the set and ignores any later toggles.
func (s *Selection) Dispose() {
	s.mu.Lock()
	s.selected = make(map[string]bool)
	s.disposed = true
	s.mu.Unlock()
}
