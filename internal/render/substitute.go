package render

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownField = errors.New("unknown template field")
	ErrMalformed    = errors.New("malformed template")
)

// FieldError reports why one template entry could not be rendered.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("template field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Substitute replaces {name} placeholders using lookup. "{{" and "}}" produce literal braces.
// Placeholders carry a bare name only; conversions and format specs are rejected.
func Substitute(format string, lookup func(string) (string, bool)) (string, error) {
	var b strings.Builder
	b.Grow(len(format))

	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed '{' at offset %d", ErrMalformed, i)
			}
			name := format[i+1 : i+1+end]
			if name == "" || strings.ContainsAny(name, "{:!") {
				return "", fmt.Errorf("%w: invalid placeholder %q", ErrMalformed, name)
			}
			v, ok := lookup(name)
			if !ok {
				return "", fmt.Errorf("%w: %s", ErrUnknownField, name)
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", ErrMalformed, i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// RenderResponse formats a webhook reply into the configured response template.
func RenderResponse(tmpl, response string) (string, error) {
	return Substitute(tmpl, func(name string) (string, bool) {
		if name == "response" {
			return response, true
		}
		return "", false
	})
}
