package client

import (
	"encoding/json"
	"time"

	"github.com/kickdeal/chatlink/internal/types"
)

type FrameType string

const (
	// Application frames delivered on a room topic.
	FrameMessage    FrameType = "MESSAGE"
	FrameRead       FrameType = "READ"
	FrameTyping     FrameType = "TYPING"
	FrameConnect    FrameType = "CONNECT"
	FrameDisconnect FrameType = "DISCONNECT"

	// Connection-level frames.
	FrameSubscribe   FrameType = "SUBSCRIBE"
	FrameUnsubscribe FrameType = "UNSUBSCRIBE"
	FrameReceipt     FrameType = "RECEIPT"
	FrameError       FrameType = "ERROR"
	FramePing        FrameType = "PING"
)

// Frame is the JSON envelope exchanged with the broker. Type discriminates
// the shape of Data; Id correlates SUBSCRIBE/UNSUBSCRIBE with RECEIPT.
type Frame struct {
	Type        FrameType       `json:"type"`
	Id          string          `json:"id,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

type SendPayload struct {
	Content string `json:"content"`
}

type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type ReadPayload struct {
	MessageId int `json:"messageId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// PresencePayload carries CONNECT/DISCONNECT peer info.
type PresencePayload struct {
	UserId   int    `json:"userId"`
	Username string `json:"username"`
}

func TopicDestination(roomId string) string {
	return "/topic/" + roomId
}

func SendDestination(roomId string) string {
	return "/app/chat/" + roomId + "/send"
}

func TypingDestination(roomId string) string {
	return "/app/chat/" + roomId + "/typing"
}

func ReadDestination(roomId string) string {
	return "/app/chat/" + roomId + "/read"
}

func NewSubscribeFrame(id, roomId string) *Frame {
	return &Frame{
		Type:        FrameSubscribe,
		Id:          id,
		Destination: TopicDestination(roomId),
	}
}

func NewUnsubscribeFrame(id, roomId string) *Frame {
	return &Frame{
		Type:        FrameUnsubscribe,
		Id:          id,
		Destination: TopicDestination(roomId),
	}
}

func NewSendFrame(id, roomId, content string) (*Frame, error) {
	data, err := json.Marshal(&SendPayload{Content: content})
	if err != nil {
		return nil, err
	}

	return &Frame{
		Type:        FrameMessage,
		Id:          id,
		Destination: SendDestination(roomId),
		Data:        data,
	}, nil
}

func NewTypingFrame(roomId string, isTyping bool) (*Frame, error) {
	data, err := json.Marshal(&TypingPayload{IsTyping: isTyping})
	if err != nil {
		return nil, err
	}

	return &Frame{
		Type:        FrameTyping,
		Destination: TypingDestination(roomId),
		Data:        data,
	}, nil
}

func NewReadFrame(roomId string, messageId int) (*Frame, error) {
	data, err := json.Marshal(&ReadPayload{MessageId: messageId})
	if err != nil {
		return nil, err
	}

	return &Frame{
		Type:        FrameRead,
		Destination: ReadDestination(roomId),
		Data:        data,
	}, nil
}

func NewPingFrame() *Frame {
	return &Frame{Type: FramePing}
}

// Event is delivered to the session's observer. Exactly one field is
// non-nil per event.
type Event struct {
	Message    *types.Message
	Read       *ReadPayload
	Typing     *TypingPayload
	PeerJoined *PresencePayload
	PeerLeft   *PresencePayload
	State      *StateChange
}

// StateChange reports a connection state transition. Err is set when the
// transition was caused by a failure.
type StateChange struct {
	Old State
	New State
	Err error
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
