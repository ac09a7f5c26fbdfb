package client

import (
	"context"
	"strings"

	"github.com/teris-io/shortid"
)

// SendMessage publishes a chat message, connecting first if necessary. It
// returns false for blank content, failed connects, and failed publishes;
// it never panics or surfaces an error type. The sent message is not
// appended locally: it arrives back through the room subscription and the
// backlog's dedup makes the echo safe.
func (s *Session) SendMessage(ctx context.Context, content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}

	if err := s.ensureConnected(ctx); err != nil {
		s.log.Printf("send message: %v", err)
		return false
	}

	id, err := shortid.Generate()
	if err != nil {
		s.log.Printf("generate message id: %v", err)
	}

	frame, err := NewSendFrame(id, s.roomId, content)
	if err != nil {
		s.log.Printf("send message: %v", err)
		return false
	}

	if err := s.publish(frame); err != nil {
		s.stats.Incr(StatPublishFailures)
		s.log.Printf("send message: %v", err)
		return false
	}

	return true
}

// SetTyping publishes the local typing flag. Best effort: failures are
// logged, not surfaced. Debouncing is the caller's concern.
func (s *Session) SetTyping(ctx context.Context, isTyping bool) {
	frame, err := NewTypingFrame(s.roomId, isTyping)
	if err != nil {
		s.log.Printf("set typing: %v", err)
		return
	}

	s.bestEffortPublish(ctx, frame, "set typing")
}

// MarkRead publishes a read receipt for one message. Best effort.
func (s *Session) MarkRead(ctx context.Context, messageId int) {
	frame, err := NewReadFrame(s.roomId, messageId)
	if err != nil {
		s.log.Printf("mark read: %v", err)
		return
	}

	s.bestEffortPublish(ctx, frame, "mark read")
}

func (s *Session) bestEffortPublish(ctx context.Context, frame *Frame, op string) {
	if err := s.ensureConnected(ctx); err != nil {
		s.log.Printf("%s: %v", op, err)
		return
	}

	if err := s.publish(frame); err != nil {
		s.stats.Incr(StatPublishFailures)
		s.log.Printf("%s: %v", op, err)
	}
}

func (s *Session) ensureConnected(ctx context.Context) error {
	if s.State() == StateConnected {
		return nil
	}

	return s.Connect(ctx)
}

func (s *Session) publish(f *Frame) error {
	s.mu.Lock()
	sendCh := s.sendCh
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || sendCh == nil {
		return ErrNotConnected
	}

	select {
	case sendCh <- f:
		return nil
	default:
		return ErrSendBufferFull
	}
}
