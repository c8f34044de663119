package render

import (
	"log/slog"

	"webhook-bridge/internal/model"
)

// Renderer builds outbound payloads from a template, the event fields and the static
// custom fields.
type Renderer struct {
	defaultTemplate    model.Template
	customFields       map[string]any
	includeEmptyFields bool
	logger             *slog.Logger
}

func NewRenderer(defaultTemplate model.Template, customFields map[string]any, includeEmpty bool, logger *slog.Logger) *Renderer {
	if defaultTemplate == nil {
		defaultTemplate = DefaultTemplate()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		defaultTemplate:    defaultTemplate,
		customFields:       customFields,
		includeEmptyFields: includeEmpty,
		logger:             logger.With("component", "render"),
	}
}

// Render applies tmpl (or the default template when tmpl is nil) to fields.
//
// A field that fails to render is left out, or set to nil when empty fields are included;
// its error is returned alongside the payload. Empty results follow the same rule.
// Custom fields are merged last and win over template output.
func (r *Renderer) Render(fields Fields, tmpl model.Template) (map[string]any, []*FieldError) {
	if tmpl == nil {
		tmpl = r.defaultTemplate
	}

	out := make(map[string]any, len(tmpl)+len(r.customFields))
	var errs []*FieldError
	for key, format := range tmpl {
		value, err := Substitute(format, fields.lookup)
		if err != nil {
			fe := &FieldError{Field: key, Err: err}
			errs = append(errs, fe)
			r.logger.Debug("failed to format template field", "field", key, "error", err)
			if r.includeEmptyFields {
				out[key] = nil
			}
			continue
		}
		if value == "" && !r.includeEmptyFields {
			continue
		}
		out[key] = value
	}

	for k, v := range r.customFields {
		out[k] = v
	}
	return out, errs
}
