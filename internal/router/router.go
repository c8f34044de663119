// Package router classifies inbound room events and drives webhook forwarding.
package router

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"webhook-bridge/internal/delivery"
	"webhook-bridge/internal/metrics"
	"webhook-bridge/internal/model"
	"webhook-bridge/internal/render"
)

//go:generate mockgen -source=router.go -destination=mocks_test.go -package=router

// Store is the part of the registration store the router needs.
type Store interface {
	ActiveForRoom(ctx context.Context, roomID string) ([]*model.Registration, error)
	RewriteRoom(ctx context.Context, oldRoom, newRoom string) error
}

// Deliverer fans a rendered event out to its registrations.
type Deliverer interface {
	FanOut(ctx context.Context, jobs []delivery.Job) []delivery.Outcome
}

// Router is constructed once at startup and shared by all workers; it keeps no state
// between events.
type Router struct {
	store         Store
	renderer      *render.Renderer
	deliverer     Deliverer
	botUserID     string
	commandPrefix string
	logger        *slog.Logger
}

type Options struct {
	BotUserID     string
	CommandPrefix string
}

func New(store Store, renderer *render.Renderer, deliverer Deliverer, opts Options, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:         store,
		renderer:      renderer,
		deliverer:     deliverer,
		botUserID:     opts.BotUserID,
		commandPrefix: opts.CommandPrefix,
		logger:        logger.With("component", "router"),
	}
}

// IsOwnEcho reports whether the event was sent by the bridge itself.
func (r *Router) IsOwnEcho(sender string) bool {
	return r.botUserID != "" && sender == r.botUserID
}

// HandleMessage forwards a room message to every active registration of its room and
// waits for all deliveries to finish. Echoes and command messages are ignored. Errors are
// logged, never returned: the room is not told about forwarding failures.
func (r *Router) HandleMessage(ctx context.Context, msg *model.MessageEvent) []delivery.Outcome {
	if r.IsOwnEcho(msg.Sender) || msg.IsCommand(r.commandPrefix) {
		return nil
	}

	regs, err := r.store.ActiveForRoom(ctx, msg.RoomID)
	if err != nil {
		r.logger.ErrorContext(ctx, "error in message forwarding", "room_id", msg.RoomID, "event_id", msg.EventID, "error", err)
		return nil
	}
	if len(regs) == 0 {
		return nil
	}

	fields := render.FieldsFromMessage(msg)
	var defaultPayload map[string]any
	jobs := lo.Map(regs, func(reg *model.Registration, _ int) delivery.Job {
		var payload map[string]any
		if reg.MessageTemplate != nil {
			var errs []*render.FieldError
			payload, errs = r.renderer.Render(fields, reg.MessageTemplate)
			r.reportFieldErrors(ctx, msg, reg.ID, errs)
		} else {
			if defaultPayload == nil {
				var errs []*render.FieldError
				defaultPayload, errs = r.renderer.Render(fields, nil)
				r.reportFieldErrors(ctx, msg, 0, errs)
			}
			payload = defaultPayload
		}
		return delivery.Job{
			Registration: reg,
			Payload:      payload,
			RoomID:       msg.RoomID,
			EventID:      msg.EventID,
		}
	})

	outcomes := r.deliverer.FanOut(ctx, jobs)

	delivered := lo.CountBy(outcomes, func(o delivery.Outcome) bool { return o.Delivered })
	r.logger.DebugContext(ctx, "message forwarded",
		"room_id", msg.RoomID, "event_id", msg.EventID,
		"registrations", len(regs), "delivered", delivered)
	return outcomes
}

// reportFieldErrors logs the fields dropped from a payload. regID is zero for the
// default template, which is rendered once per event.
func (r *Router) reportFieldErrors(ctx context.Context, msg *model.MessageEvent, regID int64, errs []*render.FieldError) {
	if len(errs) == 0 {
		return
	}
	metrics.TemplateFieldErrors.Add(float64(len(errs)))

	attrs := []any{
		"room_id", msg.RoomID, "event_id", msg.EventID,
		"fields", lo.Map(errs, func(e *render.FieldError, _ int) string { return e.Field }),
		"error", errs[0].Err,
	}
	if regID != 0 {
		attrs = append(attrs, "registration_id", regID)
	} else {
		attrs = append(attrs, "template", "default")
	}
	r.logger.WarnContext(ctx, "template fields dropped from payload", attrs...)
}

// HandleTombstone moves the room's registrations to the replacement room, if one is named.
func (r *Router) HandleTombstone(ctx context.Context, evt *model.TombstoneEvent) {
	if evt.ReplacementRoom == "" {
		return
	}
	if err := r.store.RewriteRoom(ctx, evt.RoomID, evt.ReplacementRoom); err != nil {
		r.logger.ErrorContext(ctx, "failed to update room id", "old_room", evt.RoomID, "new_room", evt.ReplacementRoom, "error", err)
		return
	}
	r.logger.InfoContext(ctx, "updated room id", "old_room", evt.RoomID, "new_room", evt.ReplacementRoom)
}
