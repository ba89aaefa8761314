// Package store holds the records of the active conversation.
//
// Every mutation builds a new slice and swaps it in under the lock, so a
// reader sees either the state before or after a mutation, never a mix. Ids
// are unique: inserting a known id is dropped, not merged.
package store

import (
	"sync"

	"github.com/huandu/go-clone"

	"github.com/go-go-golems/chatsync/pkg/events"
	"github.com/go-go-golems/chatsync/pkg/messages"
	"github.com/go-go-golems/chatsync/pkg/settings"
)

type Store struct {
	mu       sync.Mutex
	scope    messages.Scope
	records  []messages.Message
	viewSize int

	publisher *events.PublisherManager
}

type Option func(*Store)

func WithViewSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.viewSize = n
		}
	}
}

// WithPublisher publishes a StoreChanged event after every mutation.
func WithPublisher(p *events.PublisherManager) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

func New(options ...Option) *Store {
	ret := &Store{
		scope:    messages.General(),
		records:  []messages.Message{},
		viewSize: settings.Defaults().ViewSize,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (s *Store) publish(kind events.StoreChangeKind, scope messages.Scope, count int, ids []string) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishBlind(&events.StoreChanged{Kind: kind, Scope: scope, Count: count, IDs: ids})
}

func idsOf(records []messages.Message) []string {
	ret := make([]string, 0, len(records))
	for _, r := range records {
		ret = append(ret, r.ID)
	}
	return ret
}

// Replace swaps in the full record set of scope. Duplicate ids in records
// keep their first occurrence.
func (s *Store) Replace(scope messages.Scope, records []messages.Message) {
	next := messages.DedupeByID(records)

	s.mu.Lock()
	s.scope = scope
	s.records = next
	count := len(next)
	s.mu.Unlock()

	s.publish(events.StoreReplaced, scope, count, nil)
}

// Append adds records at the end in one mutation. Records whose id is already
// present, or repeated within records, are dropped. It returns the appended ids.
func (s *Store) Append(records ...messages.Message) []string {
	s.mu.Lock()
	seen := make(map[string]struct{}, len(s.records)+len(records))
	for _, r := range s.records {
		seen[r.ID] = struct{}{}
	}
	added := make([]messages.Message, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		added = append(added, r)
	}
	if len(added) == 0 {
		s.mu.Unlock()
		return nil
	}
	next := make([]messages.Message, 0, len(s.records)+len(added))
	next = append(next, s.records...)
	next = append(next, added...)
	s.records = next
	scope, count := s.scope, len(next)
	s.mu.Unlock()

	ids := idsOf(added)
	s.publish(events.StoreAppended, scope, count, ids)
	return ids
}

// RemoveWhere drops every record matching pred and returns the removed ids.
func (s *Store) RemoveWhere(pred func(*messages.Message) bool) []string {
	s.mu.Lock()
	next := make([]messages.Message, 0, len(s.records))
	var removed []string
	for i := range s.records {
		if pred(&s.records[i]) {
			removed = append(removed, s.records[i].ID)
			continue
		}
		next = append(next, s.records[i])
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.records = next
	scope, count := s.scope, len(next)
	s.mu.Unlock()

	s.publish(events.StoreRemoved, scope, count, removed)
	return removed
}

// Remove drops the record with id and reports whether it was present.
func (s *Store) Remove(id string) bool {
	return len(s.RemoveWhere(func(m *messages.Message) bool { return m.ID == id })) > 0
}

// Clear empties the store and moves it to scope.
func (s *Store) Clear(scope messages.Scope) {
	s.mu.Lock()
	s.scope = scope
	s.records = []messages.Message{}
	s.mu.Unlock()

	s.publish(events.StoreCleared, scope, 0, nil)
}

// All returns a deep copy of every record.
func (s *Store) All() []messages.Message {
	s.mu.Lock()
	records := s.records
	s.mu.Unlock()
	return clone.Clone(records).([]messages.Message)
}

// View returns a deep copy of the newest records, at most the view size.
func (s *Store) View() []messages.Message {
	s.mu.Lock()
	records := s.records
	if len(records) > s.viewSize {
		records = records[len(records)-s.viewSize:]
	}
	s.mu.Unlock()
	return clone.Clone(records).([]messages.Message)
}

func (s *Store) Get(id string) (messages.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return clone.Clone(r).(messages.Message), true
		}
	}
	return messages.Message{}, false
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) Scope() messages.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}
