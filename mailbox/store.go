package mailbox

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier receives every newly stored message for best-effort push
// delivery. Implementations must not block.
type Notifier interface {
	Notify(to string, msg Message)
}

// Store is the append-only message log. Messages are retained for the life
// of the process so the audit history survives across rounds.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	status   map[string]Status

	notifier Notifier
}

// NewStore creates an empty message log.
func NewStore() *Store {
	return &Store{status: make(map[string]Status)}
}

// SetNotifier installs the push fan-out target. May be nil.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Add appends a message to the log with a fresh id and "sent" status, then
// attempts best-effort push delivery to the recipient's live connections.
func (s *Store) Add(from, to, subject, body string) Message {
	msg := Message{
		MessageID: uuid.NewString(),
		From:      from,
		To:        to,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Status:    StatusSent,
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.status[msg.MessageID] = StatusSent
	notifier := s.notifier
	s.mu.Unlock()

	if notifier != nil {
		notifier.Notify(to, msg)
	}
	return msg
}

// AddBatch stores entries from one sender independently and concurrently.
// Each entry gets its own result; partial success is normal.
func (s *Store) AddBatch(from string, entries []BatchEntry) []BatchResult {
	results := make([]BatchResult, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry BatchEntry) {
			defer wg.Done()
			msg := s.Add(from, entry.To, entry.Subject, entry.Body)
			results[i] = BatchResult{To: entry.To, MessageID: msg.MessageID, Status: "queued"}
		}(i, entry)
	}
	wg.Wait()

	return results
}

// Inbox returns all messages addressed to agentID in insertion order, and
// advances any "sent" entries to "delivered". The advance is idempotent:
// "delivered" and "read" entries are left alone.
func (s *Store) Inbox(agentID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Message
	for i := range s.messages {
		if s.messages[i].To != agentID {
			continue
		}
		if s.messages[i].Status == StatusSent {
			s.messages[i].Status = StatusDelivered
			s.status[s.messages[i].MessageID] = StatusDelivered
		}
		result = append(result, s.messages[i])
	}
	return result
}

// Outbox returns all messages sent by agentID. Read-only: outbox entries
// keep their original delivery status.
func (s *Store) Outbox(agentID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Message
	for i := range s.messages {
		if s.messages[i].From == agentID {
			result = append(result, s.messages[i])
		}
	}
	return result
}

// Conversation returns every message the agent sent or received, ordered by
// timestamp. Incoming "sent" entries are advanced to "delivered", same rule
// as Inbox.
func (s *Store) Conversation(agentID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Message
	for i := range s.messages {
		if s.messages[i].From != agentID && s.messages[i].To != agentID {
			continue
		}
		if s.messages[i].To == agentID && s.messages[i].Status == StatusSent {
			s.messages[i].Status = StatusDelivered
			s.status[s.messages[i].MessageID] = StatusDelivered
		}
		result = append(result, s.messages[i])
	}

	sort.SliceStable(result, func(a, b int) bool {
		return result[a].Timestamp < result[b].Timestamp
	})
	return result
}

// All returns a copy of the entire log in insertion order.
func (s *Store) All() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Message, len(s.messages))
	copy(result, s.messages)
	return result
}

// MarkRead advances a message to "read". Returns false for unknown ids.
func (s *Store) MarkRead(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.status[messageID]; !ok {
		return false
	}
	s.status[messageID] = StatusRead
	for i := range s.messages {
		if s.messages[i].MessageID == messageID {
			s.messages[i].Status = StatusRead
			break
		}
	}
	return true
}

// StatusOf reports a message's delivery status, or "unknown".
func (s *Store) StatusOf(messageID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.status[messageID]; ok {
		return string(st)
	}
	return "unknown"
}

// Count returns the number of stored messages.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Clear drops all messages. Only used by the testing clear-state endpoint;
// normal operation never deletes log entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.status = make(map[string]Status)
}
