// Package command implements the in-room management commands (`!webhook register` and friends).
package command

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"webhook-bridge/internal/delivery"
	"webhook-bridge/internal/model"
)

type Subcommand string

const (
	Help       Subcommand = "help"
	Register   Subcommand = "register"
	Unregister Subcommand = "unregister"
	List       Subcommand = "list"
	Status     Subcommand = "status"
	Enable     Subcommand = "enable"
	Disable    Subcommand = "disable"
	Delete     Subcommand = "delete"
	Template   Subcommand = "template"
)

// Store is the part of the registration store the commands mutate and read.
type Store interface {
	Register(ctx context.Context, roomID, userID, webhookURL string, tmpl model.Template, existingID *int64) (*model.Registration, error)
	AllForRoom(ctx context.Context, roomID string) ([]*model.Registration, error)
	ForSubscriberInRoom(ctx context.Context, roomID, userID string) ([]*model.Registration, error)
	Disable(ctx context.Context, roomID, userID, webhookURL string) (bool, error)
	EnableByID(ctx context.Context, id int64, userID string) (bool, error)
	DisableByID(ctx context.Context, id int64, userID string) (bool, error)
	DeleteByID(ctx context.Context, id int64, userID string) (bool, error)
	UpdateTemplate(ctx context.Context, id int64, userID string, tmpl model.Template) (bool, error)
}

// handlerFunc returns the reply text for one invocation. args is the raw text after the
// subcommand name, trimmed.
type handlerFunc func(ctx context.Context, msg *model.MessageEvent, args string) string

type Dispatcher struct {
	store    Store
	replier  delivery.Replier
	prefix   string
	handlers map[Subcommand]handlerFunc
	logger   *slog.Logger
}

func New(store Store, replier delivery.Replier, prefix string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		store:   store,
		replier: replier,
		prefix:  prefix,
		logger:  logger.With("component", "command"),
	}
	d.handlers = map[Subcommand]handlerFunc{
		Help:       d.help,
		Register:   d.register,
		Unregister: d.unregister,
		List:       d.list,
		Status:     d.status,
		Enable:     d.enable,
		Disable:    d.disable,
		Delete:     d.delete,
		Template:   d.template,
	}
	return d
}

// Matches reports whether msg is addressed to the command layer.
func (d *Dispatcher) Matches(msg *model.MessageEvent) bool {
	return msg.IsCommand(d.prefix)
}

// Handle runs the command and replies to it in the room.
func (d *Dispatcher) Handle(ctx context.Context, msg *model.MessageEvent) {
	text := d.Execute(ctx, msg)
	if err := d.replier.Reply(ctx, msg.RoomID, msg.EventID, text); err != nil {
		d.logger.ErrorContext(ctx, "failed to send command reply", "room_id", msg.RoomID, "event_id", msg.EventID, "error", err)
	}
}

// Execute parses msg and returns the reply text without sending it.
func (d *Dispatcher) Execute(ctx context.Context, msg *model.MessageEvent) string {
	name, args := split(strings.TrimPrefix(strings.TrimSpace(msg.Body), d.prefix))
	if name == "" {
		return d.help(ctx, msg, args)
	}

	h, ok := d.handlers[Subcommand(strings.ToLower(name))]
	if !ok {
		return "❌ Unknown subcommand `" + name + "`.\n\n" + d.helpText()
	}
	d.logger.DebugContext(ctx, "command", "subcommand", name, "sender", msg.Sender, "room_id", msg.RoomID)
	return h(ctx, msg, args)
}

func split(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
