package client

import (
	"encoding/json"

	"github.com/kickdeal/chatlink/internal/types"
)

// handleFrame decodes one inbound frame and routes it. Malformed payloads
// are dropped locally; they never tear down the connection.
func (s *Session) handleFrame(raw []byte) {
	s.stats.Incr(StatInboundFrames)

	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		s.log.Println("drop frame:", err)
		s.stats.Incr(StatDroppedFrames)
		return
	}

	s.routeFrame(&f)
}

func (s *Session) routeFrame(f *Frame) {
	switch f.Type {
	case FrameMessage:
		var msg types.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			s.dropFrame(f, err)
			return
		}
		if !s.backlog.Append(msg) {
			s.log.Printf("duplicate message %d dropped", msg.Id)
			return
		}
		s.emit(Event{Message: &msg})
	case FrameRead:
		var p ReadPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			s.dropFrame(f, err)
			return
		}
		s.backlog.MarkRead(p.MessageId)
		s.emit(Event{Read: &p})
	case FrameTyping:
		var p TypingPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			s.dropFrame(f, err)
			return
		}
		s.mu.Lock()
		s.peerTyping = p.IsTyping
		s.mu.Unlock()
		s.emit(Event{Typing: &p})
	case FrameConnect:
		var p PresencePayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			s.dropFrame(f, err)
			return
		}
		s.emit(Event{PeerJoined: &p})
	case FrameDisconnect:
		var p PresencePayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			s.dropFrame(f, err)
			return
		}
		s.emit(Event{PeerLeft: &p})
	case FrameReceipt, FrameError:
		// Connection-level frames outside a handshake carry no app event.
		s.log.Printf("late %s frame: %s", f.Type, f.Data)
	default:
		s.dropFrame(f, nil)
	}
}

func (s *Session) dropFrame(f *Frame, err error) {
	if err != nil {
		s.log.Printf("drop %s frame: %v", f.Type, err)
	} else {
		s.log.Printf("drop frame with unknown type %q", f.Type)
	}
	s.stats.Incr(StatDroppedFrames)
}
