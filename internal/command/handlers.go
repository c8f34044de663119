package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"webhook-bridge/internal/model"
)

const createdLayout = "2006-01-02 15:04:05"

func statusLabel(enabled bool) string {
	if enabled {
		return "🟢 Active"
	}
	return "🔴 Disabled"
}

func (d *Dispatcher) helpText() string {
	p := d.prefix
	return "Available webhook commands:\n" +
		"• `" + p + " register <url>` - Register a webhook URL\n" +
		"• `" + p + " unregister [url]` - Unregister your webhook(s)\n" +
		"• `" + p + " list` - List all webhooks in this room\n" +
		"• `" + p + " status` - Check your webhook status\n" +
		"• `" + p + " enable <id>` - Re-enable one of your webhooks\n" +
		"• `" + p + " disable <id>` - Disable one of your webhooks\n" +
		"• `" + p + " delete <id>` - Delete one of your webhooks\n" +
		"• `" + p + " template <id> <json|reset>` - Set or reset a webhook's payload template"
}

func (d *Dispatcher) help(context.Context, *model.MessageEvent, string) string {
	return d.helpText()
}

func (d *Dispatcher) register(ctx context.Context, msg *model.MessageEvent, url string) string {
	if url == "" {
		return "❌ Please provide a webhook URL.\nUsage: `" + d.prefix + " register <url>`"
	}
	if err := model.ValidateWebhookURL(url); err != nil {
		return "❌ Invalid URL. Please provide a valid HTTP or HTTPS URL."
	}

	reg, err := d.store.Register(ctx, msg.RoomID, msg.Sender, url, nil, nil)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to register webhook", "error", err)
		return fmt.Sprintf("❌ Failed to register webhook: %v", err)
	}

	d.logger.InfoContext(ctx, "webhook registered", "id", reg.ID, "url", url, "user_id", msg.Sender, "room_id", msg.RoomID)
	return fmt.Sprintf("✅ Webhook registered successfully!\n"+
		"**ID:** %d\n"+
		"**URL:** `%s`\n"+
		"**Room:** %s\n"+
		"**User:** %s\n\n"+
		"All messages in this room will now be forwarded to your webhook.",
		reg.ID, url, msg.RoomID, msg.Sender)
}

func (d *Dispatcher) unregister(ctx context.Context, msg *model.MessageEvent, url string) string {
	ok, err := d.store.Disable(ctx, msg.RoomID, msg.Sender, url)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to unregister webhook", "error", err)
		return fmt.Sprintf("❌ Failed to unregister webhook: %v", err)
	}
	if !ok {
		return "❌ No webhook found to unregister."
	}
	d.logger.InfoContext(ctx, "webhook unregistered", "user_id", msg.Sender, "room_id", msg.RoomID, "url", url)
	return "✅ Webhook unregistered successfully."
}

func (d *Dispatcher) list(ctx context.Context, msg *model.MessageEvent, _ string) string {
	regs, err := d.store.AllForRoom(ctx, msg.RoomID)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to list webhooks", "error", err)
		return fmt.Sprintf("❌ Failed to list webhooks: %v", err)
	}
	if len(regs) == 0 {
		return "No webhooks registered in this room."
	}

	var sb strings.Builder
	sb.WriteString("**Webhooks in this room:**\n\n")

	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"ID", "User", "URL", "Status", "Created"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.AppendBulk(lo.Map(regs, func(r *model.Registration, _ int) []string {
		return []string{
			strconv.FormatInt(r.ID, 10),
			r.UserID,
			"`" + r.WebhookURL + "`",
			statusLabel(r.Enabled),
			r.CreatedAt.Format(createdLayout),
		}
	}))
	table.Render()

	return sb.String()
}

func (d *Dispatcher) status(ctx context.Context, msg *model.MessageEvent, _ string) string {
	regs, err := d.store.ForSubscriberInRoom(ctx, msg.RoomID, msg.Sender)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to get webhook status", "error", err)
		return fmt.Sprintf("❌ Failed to get webhook status: %v", err)
	}
	if len(regs) == 0 {
		return "❌ No webhook registered for you in this room."
	}

	var sb strings.Builder
	sb.WriteString("**Your webhook status:**\n")
	for _, r := range regs {
		fmt.Fprintf(&sb, "\n**ID:** %d\n**URL:** `%s`\n**Status:** %s\n**Created:** %s\n",
			r.ID, r.WebhookURL, statusLabel(r.Enabled), r.CreatedAt.Format(createdLayout))
		if r.MessageTemplate != nil {
			sb.WriteString("**Template:** custom\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// byID runs op on the registration id parsed from args, replying with done on success.
func (d *Dispatcher) byID(ctx context.Context, msg *model.MessageEvent, args string, sub Subcommand, done string,
	op func(ctx context.Context, id int64, userID string) (bool, error)) string {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return fmt.Sprintf("❌ Usage: `%s %s <id>`", d.prefix, sub)
	}

	ok, err := op(ctx, id, msg.Sender)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to "+string(sub)+" webhook", "id", id, "error", err)
		return fmt.Sprintf("❌ Failed to %s webhook: %v", sub, err)
	}
	if !ok {
		return fmt.Sprintf("❌ No webhook found with id %d.", id)
	}
	d.logger.InfoContext(ctx, "webhook "+done, "id", id, "user_id", msg.Sender)
	return fmt.Sprintf("✅ Webhook %d %s.", id, done)
}

func (d *Dispatcher) enable(ctx context.Context, msg *model.MessageEvent, args string) string {
	return d.byID(ctx, msg, args, Enable, "enabled", d.store.EnableByID)
}

func (d *Dispatcher) disable(ctx context.Context, msg *model.MessageEvent, args string) string {
	return d.byID(ctx, msg, args, Disable, "disabled", d.store.DisableByID)
}

func (d *Dispatcher) delete(ctx context.Context, msg *model.MessageEvent, args string) string {
	return d.byID(ctx, msg, args, Delete, "deleted", d.store.DeleteByID)
}

var errTemplateShape = errors.New("template must be a JSON object with string values")

func parseTemplate(raw string) (model.Template, error) {
	if strings.EqualFold(raw, "reset") {
		return nil, nil
	}
	var tmpl model.Template
	if err := json.Unmarshal([]byte(raw), &tmpl); err != nil || tmpl == nil {
		return nil, errTemplateShape
	}
	return tmpl, nil
}

func (d *Dispatcher) template(ctx context.Context, msg *model.MessageEvent, args string) string {
	usage := fmt.Sprintf("❌ Usage: `%s template <id> <json|reset>`", d.prefix)

	idText, raw := split(args)
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || raw == "" {
		return usage
	}
	tmpl, err := parseTemplate(raw)
	if err != nil {
		return fmt.Sprintf("❌ Invalid template: %v.", err)
	}

	ok, err := d.store.UpdateTemplate(ctx, id, msg.Sender, tmpl)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to update template", "id", id, "error", err)
		return fmt.Sprintf("❌ Failed to update template: %v", err)
	}
	if !ok {
		return fmt.Sprintf("❌ No webhook found with id %d.", id)
	}
	if tmpl == nil {
		return fmt.Sprintf("✅ Template reset for webhook %d.", id)
	}
	return fmt.Sprintf("✅ Template updated for webhook %d.", id)
}
