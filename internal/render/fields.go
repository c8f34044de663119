// Package render turns a room message into the flat payload posted to webhooks.
package render

import (
	"strconv"

	"webhook-bridge/internal/model"
)

// Field names available to templates. Templates may reference nothing else.
const (
	FieldEventID       = "event_id"
	FieldRoomID        = "room_id"
	FieldSender        = "sender"
	FieldTimestamp     = "timestamp"
	FieldMessageType   = "message_type"
	FieldBody          = "body"
	FieldFormattedBody = "formatted_body"
	FieldFormat        = "format"
)

var Vocabulary = []string{
	FieldEventID,
	FieldRoomID,
	FieldSender,
	FieldTimestamp,
	FieldMessageType,
	FieldBody,
	FieldFormattedBody,
	FieldFormat,
}

// DefaultTemplate forwards every field under its own name.
func DefaultTemplate() model.Template {
	t := make(model.Template, len(Vocabulary))
	for _, f := range Vocabulary {
		t[f] = "{" + f + "}"
	}
	return t
}

// Fields holds the substitution values of one event. Absent optional values are nil.
type Fields map[string]*string

func FieldsFromMessage(m *model.MessageEvent) Fields {
	return Fields{
		FieldEventID:       ptr(m.EventID),
		FieldRoomID:        ptr(m.RoomID),
		FieldSender:        ptr(m.Sender),
		FieldTimestamp:     ptr(strconv.FormatInt(m.Timestamp, 10)),
		FieldMessageType:   ptr(m.MsgType),
		FieldBody:          ptr(m.Body),
		FieldFormattedBody: m.FormattedBody,
		FieldFormat:        m.Format,
	}
}

func (f Fields) lookup(name string) (string, bool) {
	v, ok := f[name]
	if !ok {
		return "", false
	}
	if v == nil {
		return "", true
	}
	return *v, true
}

func ptr(s string) *string {
	return &s
}
