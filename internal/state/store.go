package state

import (
	"sort"
	"sync"

	"github.com/aonescu/kubedit/internal/types"
)

type Store interface {
	Record(event types.SyncEvent) error
	Latest(document string) (types.SyncEvent, bool)
	// History returns the newest events first, at most limit of them when limit > 0.
	History(document string, limit int) []types.SyncEvent
	Documents() []string
}

// In-memory implementation for fallback
type MemoryStore struct {
	mu             sync.RWMutex
	events         map[string][]types.SyncEvent
	maxPerDocument int
}

// NewMemoryStore keeps at most maxPerDocument events per document, all of them when
// maxPerDocument <= 0.
func NewMemoryStore(maxPerDocument int) *MemoryStore {
	return &MemoryStore{
		events:         make(map[string][]types.SyncEvent),
		maxPerDocument: maxPerDocument,
	}
}

func (s *MemoryStore) Record(event types.SyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := append(s.events[event.Document], event)
	if s.maxPerDocument > 0 && len(events) > s.maxPerDocument {
		events = append([]types.SyncEvent(nil), events[len(events)-s.maxPerDocument:]...)
	}
	s.events[event.Document] = events
	return nil
}

func (s *MemoryStore) Latest(document string) (types.SyncEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[document]
	if len(events) == 0 {
		return types.SyncEvent{}, false
	}
	return events[len(events)-1], true
}

func (s *MemoryStore) History(document string, limit int) []types.SyncEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[document]
	results := make([]types.SyncEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if limit > 0 && len(results) == limit {
			break
		}
		results = append(results, events[i])
	}
	return results
}

func (s *MemoryStore) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	documents := make([]string, 0, len(s.events))
	for document := range s.events {
		documents = append(documents, document)
	}
	sort.Strings(documents)
	return documents
}
