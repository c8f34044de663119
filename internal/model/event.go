// internal/model/event.go
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventRoomMessage   = "m.room.message"
	EventRoomTombstone = "m.room.tombstone"

	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
)

// Envelope is the inbound JSON shape published by the chat platform side.
type Envelope struct {
	Type           string          `json:"type"`
	EventID        string          `json:"event_id"`
	RoomID         string          `json:"room_id"`
	Sender         string          `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
}

type messageContent struct {
	MsgType       string  `json:"msgtype"`
	Body          string  `json:"body"`
	Format        *string `json:"format,omitempty"`
	FormattedBody *string `json:"formatted_body,omitempty"`
}

type tombstoneContent struct {
	Body            string `json:"body"`
	ReplacementRoom string `json:"replacement_room"`
}

// MessageEvent is a room message. It is treated as immutable once decoded.
type MessageEvent struct {
	EventID       string
	RoomID        string
	Sender        string
	Timestamp     int64
	MsgType       string
	Body          string
	FormattedBody *string
	Format        *string
}

// TombstoneEvent signals that RoomID has been replaced by ReplacementRoom.
type TombstoneEvent struct {
	EventID         string
	RoomID          string
	Sender          string
	ReplacementRoom string
}

// IsCommand reports whether the message is plain text starting with prefix.
func (m *MessageEvent) IsCommand(prefix string) bool {
	if m.MsgType != MsgTypeText || prefix == "" {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(m.Body), prefix)
}

// DecodeEnvelope parses a raw inbound payload.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" || env.RoomID == "" {
		return nil, fmt.Errorf("decode envelope: missing type or room_id")
	}
	return &env, nil
}

func (e *Envelope) Message() (*MessageEvent, error) {
	var c messageContent
	if len(e.Content) > 0 {
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return nil, fmt.Errorf("decode message content: %w", err)
		}
	}
	return &MessageEvent{
		EventID:       e.EventID,
		RoomID:        e.RoomID,
		Sender:        e.Sender,
		Timestamp:     e.OriginServerTS,
		MsgType:       c.MsgType,
		Body:          c.Body,
		FormattedBody: c.FormattedBody,
		Format:        c.Format,
	}, nil
}

func (e *Envelope) Tombstone() (*TombstoneEvent, error) {
	var c tombstoneContent
	if len(e.Content) > 0 {
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return nil, fmt.Errorf("decode tombstone content: %w", err)
		}
	}
	return &TombstoneEvent{
		EventID:         e.EventID,
		RoomID:          e.RoomID,
		Sender:          e.Sender,
		ReplacementRoom: c.ReplacementRoom,
	}, nil
}

// Reply is the outbound JSON shape consumed by the chat platform side.
type Reply struct {
	RoomID    string `json:"room_id"`
	InReplyTo string `json:"in_reply_to,omitempty"`
	MsgType   string `json:"msgtype"`
	Body      string `json:"body"`
}
