package client

import (
	"sync"

	"github.com/kickdeal/chatlink/internal/types"
)

// Backlog holds the messages received for one room in arrival order. Ids
// are unique within a backlog: a frame re-delivering an id already present
// is dropped. Arrival order is not guaranteed to match timestamp order and
// the backlog does not reorder.
type Backlog struct {
	mu       sync.RWMutex
	messages []types.Message
	seen     map[int]int
}

func NewBacklog() *Backlog {
	return &Backlog{
		seen: make(map[int]int),
	}
}

// Replace swaps the entire backlog for a history snapshot, typically the
// result of a REST history load before live frames start arriving.
func (b *Backlog) Replace(history []types.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = make([]types.Message, 0, len(history))
	b.seen = make(map[int]int, len(history))
	for _, msg := range history {
		if _, ok := b.seen[msg.Id]; ok {
			continue
		}
		b.seen[msg.Id] = len(b.messages)
		b.messages = append(b.messages, msg)
	}
}

// Append adds a live message, returning false if its id was already present.
func (b *Backlog) Append(msg types.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[msg.Id]; ok {
		return false
	}

	b.seen[msg.Id] = len(b.messages)
	b.messages = append(b.messages, msg)
	return true
}

// MarkRead flags the message with the given id as read, returning false if
// no such message exists.
func (b *Backlog) MarkRead(messageId int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.seen[messageId]
	if !ok {
		return false
	}

	b.messages[i].IsRead = true
	return true
}

// Messages returns a copy of the backlog in arrival order.
func (b *Backlog) Messages() []types.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *Backlog) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.messages)
}
