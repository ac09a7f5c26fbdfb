package types

import (
	"time"
)

type User struct {
	Id        int       `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Room is the metadata returned by GET /chatrooms/{id}. Every room is tied
// to one marketplace listing and has exactly two participants.
type Room struct {
	Id           int       `json:"id"`
	ProductId    int       `json:"productId"`
	ProductTitle string    `json:"productTitle"`
	Price        int       `json:"price"`
	Participants []User    `json:"participants"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

type Message struct {
	Id         int       `json:"id"`
	RoomId     int       `json:"roomId"`
	SenderId   int       `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"isRead,omitempty"`
}
