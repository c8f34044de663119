package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "webhook-bridge/docs"

	"webhook-bridge/internal/auth"
	"webhook-bridge/internal/metrics"
	"webhook-bridge/internal/model"
	"webhook-bridge/internal/storage"
)

func (a *API) Router() http.Handler {
	a.Routers.Use(middleware.RequestID)
	a.Routers.Use(middleware.Recoverer)

	// Public
	a.Routers.Get("/healthz", a.Health)
	a.Routers.Handle("/metrics", metrics.Handler())
	a.Routers.Get("/swagger/*", httpSwagger.WrapHandler)

	if a.Auth == nil {
		a.logger.Warn("no JWT secret configured, management routes disabled")
		return a.Routers
	}

	// Secured
	a.Routers.Group(func(r chi.Router) {
		r.Use(a.Auth.Middleware)

		r.Get("/rooms/{room}/webhooks", a.ListRoomWebhooks)
		r.Get("/rooms/{room}/webhooks/mine", a.ListMyWebhooks)
		r.Post("/rooms/{room}/webhooks", a.RegisterWebhook)
		r.Post("/webhooks/{id}/enable", a.EnableWebhook)
		r.Post("/webhooks/{id}/disable", a.DisableWebhook)
		r.Delete("/webhooks/{id}", a.DeleteWebhook)
		r.Put("/webhooks/{id}/template", a.UpdateTemplate)
	})

	return a.Routers
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// roomParam decodes the room id, which clients usually percent-encode ('!' and ':').
func roomParam(r *http.Request) string {
	raw := chi.URLParam(r, "room")
	if room, err := url.PathUnescape(raw); err == nil {
		return room
	}
	return raw
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// @Summary Health check
// @Tags System
// @Success 200 {object} map[string]string
// @Failure 503 {object} ErrorResponse
// @Router /healthz [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Summary List all webhooks registered in a room
// @Tags Webhooks
// @Security ApiKeyAuth
// @Produce json
// @Param room path string true "Room id"
// @Success 200 {array} model.Registration
// @Router /rooms/{room}/webhooks [get]
func (a *API) ListRoomWebhooks(w http.ResponseWriter, r *http.Request) {
	regs, err := a.Store.AllForRoom(r.Context(), roomParam(r))
	if err != nil {
		a.logger.ErrorContext(r.Context(), "failed to list webhooks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(regs))
}

// @Summary List the caller's webhooks in a room, most recent first
// @Tags Webhooks
// @Security ApiKeyAuth
// @Produce json
// @Param room path string true "Room id"
// @Success 200 {array} model.Registration
// @Router /rooms/{room}/webhooks/mine [get]
func (a *API) ListMyWebhooks(w http.ResponseWriter, r *http.Request) {
	regs, err := a.Store.ForSubscriberInRoom(r.Context(), roomParam(r), auth.GetSubscriber(r))
	if err != nil {
		a.logger.ErrorContext(r.Context(), "failed to list webhooks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(regs))
}

// @Summary Register a webhook for the caller in a room
// @Tags Webhooks
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param room path string true "Room id"
// @Param body body RegisterRequest true "Registration"
// @Success 201 {object} model.Registration
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /rooms/{room}/webhooks [post]
func (a *API) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var body RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	reg, err := a.Store.Register(r.Context(), roomParam(r), auth.GetSubscriber(r), body.URL, body.Template, body.ID)
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	case err != nil:
		a.logger.ErrorContext(r.Context(), "failed to register webhook", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register webhook")
		return
	}

	a.logger.InfoContext(r.Context(), "webhook registered", "id", reg.ID, "room_id", reg.RoomID, "user_id", reg.UserID)
	writeJSON(w, http.StatusCreated, reg)
}

// byID applies an ownership-checked mutation and answers with the updated row,
// or 204 when the row is gone.
func (a *API) byID(w http.ResponseWriter, r *http.Request, op func(*http.Request, int64, string) (bool, error), gone bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	found, err := op(r, id, auth.GetSubscriber(r))
	if err != nil {
		a.logger.ErrorContext(r.Context(), "webhook update failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update webhook")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}
	if gone {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	reg, err := a.Store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load webhook")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// @Summary Enable one of the caller's webhooks
// @Tags Webhooks
// @Security ApiKeyAuth
// @Param id path int true "Webhook id"
// @Success 200 {object} model.Registration
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/{id}/enable [post]
func (a *API) EnableWebhook(w http.ResponseWriter, r *http.Request) {
	a.byID(w, r, func(r *http.Request, id int64, user string) (bool, error) {
		return a.Store.EnableByID(r.Context(), id, user)
	}, false)
}

// @Summary Disable one of the caller's webhooks
// @Tags Webhooks
// @Security ApiKeyAuth
// @Param id path int true "Webhook id"
// @Success 200 {object} model.Registration
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/{id}/disable [post]
func (a *API) DisableWebhook(w http.ResponseWriter, r *http.Request) {
	a.byID(w, r, func(r *http.Request, id int64, user string) (bool, error) {
		return a.Store.DisableByID(r.Context(), id, user)
	}, false)
}

// @Summary Delete one of the caller's webhooks
// @Tags Webhooks
// @Security ApiKeyAuth
// @Param id path int true "Webhook id"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/{id} [delete]
func (a *API) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	a.byID(w, r, func(r *http.Request, id int64, user string) (bool, error) {
		return a.Store.DeleteByID(r.Context(), id, user)
	}, true)
}

// @Summary Replace or reset a webhook's payload template
// @Tags Webhooks
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param id path int true "Webhook id"
// @Param body body TemplateRequest true "Template, null to reset"
// @Success 200 {object} model.Registration
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/{id}/template [put]
func (a *API) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var body TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	a.byID(w, r, func(r *http.Request, id int64, user string) (bool, error) {
		return a.Store.UpdateTemplate(r.Context(), id, user, body.Template)
	}, false)
}

func nonNil(regs []*model.Registration) []*model.Registration {
	if regs == nil {
		return []*model.Registration{}
	}
	return regs
}
