package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lop "github.com/samber/lo/parallel"

	"webhook-bridge/internal/metrics"
	"webhook-bridge/internal/model"
	"webhook-bridge/internal/render"
)

// Replier relays text into a room as a reply to an event.
type Replier interface {
	Reply(ctx context.Context, roomID, inReplyTo, text string) error
}

// Config holds the delivery policy.
type Config struct {
	Timeout          time.Duration
	MaxRetries       int
	UserAgent        string
	ResponseTemplate string
	BackoffUnit      time.Duration
}

// Job is one registration's share of an event fan-out.
type Job struct {
	Registration *model.Registration
	Payload      map[string]any
	RoomID       string
	EventID      string
}

// Outcome is the final state of one delivery.
type Outcome struct {
	DeliveryID     string
	RegistrationID int64
	Attempts       int
	StatusCode     int
	Delivered      bool
	Replied        bool
	Err            error
}

// Engine posts payloads to webhooks with retries and relays their responses.
type Engine struct {
	config  Config
	replier Replier
	tracer  *Tracer
	logger  *slog.Logger

	sleep     func(ctx context.Context, d time.Duration) error
	newSender func() *Sender
}

func NewEngine(cfg Config, replier Replier, tracer *Tracer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = NewTracer(nil)
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}
	e := &Engine{
		config:  cfg,
		replier: replier,
		tracer:  tracer,
		logger:  logger.With("component", "delivery"),
		sleep:   sleepContext,
	}
	e.newSender = func() *Sender { return NewSender(e.config.Timeout, e.config.UserAgent) }
	return e
}

// FanOut delivers every job concurrently and returns once all of them have finished.
// Outcomes are returned in job order.
func (e *Engine) FanOut(ctx context.Context, jobs []Job) []Outcome {
	return lop.Map(jobs, func(job Job, _ int) Outcome {
		return e.Deliver(ctx, job)
	})
}

// Deliver runs the full attempt sequence for one job. It never panics; every failure is
// reported through the returned Outcome.
func (e *Engine) Deliver(ctx context.Context, job Job) (out Outcome) {
	out = Outcome{
		DeliveryID:     uuid.NewString(),
		RegistrationID: job.Registration.ID,
	}
	log := e.logger.With(
		"delivery_id", out.DeliveryID,
		"registration_id", job.Registration.ID,
		"url", job.Registration.WebhookURL,
	)

	ctx, span := e.tracer.StartDeliverySpan(ctx, out.DeliveryID, job.Registration.ID, job.RoomID, job.EventID)
	defer func() {
		if r := recover(); r != nil {
			out.Err = &UnexpectedError{Err: fmt.Errorf("panic: %v", r)}
		}
		if isUnexpected(out.Err) {
			log.ErrorContext(ctx, "unexpected error forwarding to webhook", "error", out.Err)
		}
		switch {
		case out.Delivered:
			metrics.DeliveriesTotal.WithLabelValues("delivered").Inc()
		case isUnexpected(out.Err):
			metrics.DeliveriesTotal.WithLabelValues("unexpected").Inc()
		default:
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		}
		e.tracer.EndDeliverySpan(span, out)
	}()

	body, err := json.Marshal(job.Payload)
	if err != nil {
		out.Err = &UnexpectedError{Err: fmt.Errorf("marshal payload: %w", err)}
		return out
	}

	sender := e.newSender()
	defer sender.Close()

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, Backoff(e.config.BackoffUnit, attempt)); err != nil {
				out.Err = fmt.Errorf("delivery abandoned: %w", err)
				return out
			}
		}

		out.Attempts++
		res := sender.Send(ctx, job.Registration.WebhookURL, body)
		out.StatusCode = res.StatusCode
		metrics.DeliveryAttempts.WithLabelValues(res.Kind()).Inc()
		metrics.DeliveryLatency.Observe(res.Latency.Seconds())

		switch res.Kind() {
		case "ok":
			out.Delivered = true
			out.Err = nil
			out.Replied = e.relay(ctx, log, job, res.Response)
			log.DebugContext(ctx, "forwarded message to webhook", "attempts", out.Attempts)
			return out
		case "status":
			lastErr = &StatusError{StatusCode: res.StatusCode}
			log.WarnContext(ctx, "webhook returned non-200 status", "status", res.StatusCode, "attempt", attempt+1)
		case "timeout":
			lastErr = res.Err
			log.WarnContext(ctx, "timeout forwarding to webhook", "attempt", attempt+1)
		default:
			lastErr = res.Err
			log.WarnContext(ctx, "client error forwarding to webhook", "error", res.Err, "attempt", attempt+1)
		}
	}

	out.Err = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, out.Attempts, lastErr)
	log.ErrorContext(ctx, "failed to forward message to webhook", "attempts", out.Attempts, "error", lastErr)
	return out
}

// relay posts a non-empty webhook response back into the originating room.
func (e *Engine) relay(ctx context.Context, log *slog.Logger, job Job, response string) bool {
	response = strings.TrimSpace(response)
	if response == "" || e.replier == nil {
		return false
	}

	text, err := render.RenderResponse(e.config.ResponseTemplate, response)
	if err != nil {
		log.WarnContext(ctx, "failed to format webhook response", "error", err)
		metrics.RepliesTotal.WithLabelValues("template_error").Inc()
		return false
	}
	if err := e.replier.Reply(ctx, job.RoomID, job.EventID, text); err != nil {
		log.ErrorContext(ctx, "failed to relay webhook response", "error", err)
		metrics.RepliesTotal.WithLabelValues("failed").Inc()
		return false
	}
	metrics.RepliesTotal.WithLabelValues("sent").Inc()
	return true
}

func isUnexpected(err error) bool {
	var ue *UnexpectedError
	return errors.As(err, &ue)
}
