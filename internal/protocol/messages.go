// Package protocol defines the websocket message envelope for chat.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage MessageType = "chat_message"
	TypeChatReply   MessageType = "chat_reply"
	TypeErrorEvent  MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatMessage is one user utterance addressed to a companion.
type ChatMessage struct {
	Type        MessageType `json:"type"`
	CompanionID string      `json:"companion_id"`
	Content     string      `json:"content"`
	TSMs        int64       `json:"ts_ms,omitempty"`
}

// ChatReply carries the companion's reply back to the client.
type ChatReply struct {
	Type        MessageType `json:"type"`
	CompanionID string      `json:"companion_id"`
	TurnID      int64       `json:"turn_id"`
	Content     string      `json:"content"`
	Blocked     bool        `json:"blocked,omitempty"`
}

// ErrorEvent reports a failed turn to the client.
type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail,omitempty"`
}

// ParseClientMessage decodes and validates an inbound frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CompanionID == "" || msg.Content == "" {
			return nil, errors.New("invalid chat_message")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
