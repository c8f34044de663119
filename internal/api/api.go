package api

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"webhook-bridge/internal/auth"
	"webhook-bridge/internal/model"
)

// Store is the registration store as seen by the management API.
type Store interface {
	Register(ctx context.Context, roomID, userID, webhookURL string, tmpl model.Template, existingID *int64) (*model.Registration, error)
	AllForRoom(ctx context.Context, roomID string) ([]*model.Registration, error)
	ForSubscriberInRoom(ctx context.Context, roomID, userID string) ([]*model.Registration, error)
	GetByID(ctx context.Context, id int64) (*model.Registration, error)
	EnableByID(ctx context.Context, id int64, userID string) (bool, error)
	DisableByID(ctx context.Context, id int64, userID string) (bool, error)
	DeleteByID(ctx context.Context, id int64, userID string) (bool, error)
	UpdateTemplate(ctx context.Context, id int64, userID string, tmpl model.Template) (bool, error)
	Ping(ctx context.Context) error
}

type API struct {
	Store   Store
	Auth    *auth.Authenticator
	Routers *chi.Mux
	logger  *slog.Logger
}

// NewAPI builds the management API. A nil authenticator leaves only the public routes mounted.
func NewAPI(store Store, authn *auth.Authenticator, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		Store:   store,
		Auth:    authn,
		Routers: chi.NewRouter(),
		logger:  logger.With("component", "api"),
	}
}

// RegisterRequest is the body of POST /rooms/{room}/webhooks.
type RegisterRequest struct {
	URL      string         `json:"url"`
	Template model.Template `json:"template,omitempty"`
	ID       *int64         `json:"id,omitempty"`
}

// TemplateRequest is the body of PUT /webhooks/{id}/template. A null template resets it.
type TemplateRequest struct {
	Template model.Template `json:"template"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
