package models

// Live event names exchanged with the connection layer. Inbound frames
// carry Frame; outbound frames carry Event.
const (
	EvJoin     = "join"
	EvLeave    = "leave"
	EvTyping   = "typing"
	EvMarkRead = "markRead"
	EvPing     = "ping"

	EvMemberJoined       = "memberJoined"
	EvMemberLeft         = "memberLeft"
	EvMemberDisconnected = "memberDisconnected"
	EvNewMessage         = "newMessage"
	EvMessageDeleted     = "messageDeleted"
	EvTypingStarted      = "typingStarted"
	EvTypingStopped      = "typingStopped"
	EvMessagesRead       = "messagesRead"
	EvOnlineUsers        = "onlineUsers"
	EvPong               = "pong"
)

// Frame is an inbound client frame on the live connection.
type Frame struct {
	Event      string   `json:"event"`
	RoomID     string   `json:"roomId,omitempty"`
	IsTyping   bool     `json:"isTyping,omitempty"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// Event is an outbound frame fanned out to live subscribers.
type Event struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId,omitempty"`
	Data   any    `json:"data,omitempty"`
}
