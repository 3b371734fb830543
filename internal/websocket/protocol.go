package websocket

import (
	"reporthub-backend/internal/collab"
)

type MessageType string

const (
	// Server -> client
	MsgJoined   MessageType = "joined"
	MsgUpdate   MessageType = "update"
	MsgPresence MessageType = "presence"
	MsgError    MessageType = "error"

	// Client -> server
	MsgSendUpdate MessageType = "update"
	MsgPing       MessageType = "ping"
	MsgLeave      MessageType = "leave"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// JoinedPayload is sent once after the connection is accepted: the
// current document plus how many users are present.
type JoinedPayload struct {
	SessionID string          `json:"session_id"`
	Document  collab.Document `json:"document"`
	UserCount int             `json:"user_count"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClientMessage is what a connected client sends us.
type ClientMessage struct {
	Type   MessageType           `json:"type"`
	Update *collab.UpdateRequest `json:"update,omitempty"`
}
