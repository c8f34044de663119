// internal/model/registration.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Template maps an output field name to a format string such as "{sender}: {body}".
// A nil Template means "use the configured default".
type Template map[string]string

type Registration struct {
	ID              int64     `db:"id" json:"id"`
	RoomID          string    `db:"room_id" json:"room_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	WebhookURL      string    `db:"webhook_url" json:"webhook_url"`
	Enabled         bool      `db:"enabled" json:"enabled"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	MessageTemplate Template  `db:"message_data_template" json:"message_data_template,omitempty"`
}

// Value stores the template as a JSON text column. A nil template is stored as NULL.
func (t Template) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON text column back into the template.
func (t *Template) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("template: unsupported column type %T", src)
	}
	if len(raw) == 0 {
		*t = nil
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("template: decode column: %w", err)
	}
	*t = m
	return nil
}

var ErrInvalidURL = errors.New("invalid webhook url")

// ValidationError indicates invalid input at registration time.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidURL
}

// ValidateWebhookURL accepts absolute http and https URLs with a non-empty host.
func ValidateWebhookURL(raw string) error {
	if raw == "" {
		return &ValidationError{Field: "url", Message: "required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "url", Message: "malformed"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url", Message: "host is required"}
	}
	return nil
}
