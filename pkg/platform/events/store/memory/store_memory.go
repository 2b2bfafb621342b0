package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"attestry/pkg/platform/events"
)

// InMemoryStore keeps the event log in a slice. Sequence numbers are assigned
// under the lock, so append order, sequence order and commit order coincide.
type InMemoryStore struct {
	mu     sync.RWMutex
	log    []events.Event
	lastID uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event events.Event) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	event.Seq = s.lastID
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.log = append(s.log, event)
	return event, nil
}

func (s *InMemoryStore) ListAfter(_ context.Context, after uint64, limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []events.Event
	for _, e := range s.log {
		if e.Seq <= after {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Clear resets the log. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	s.lastID = 0
}
