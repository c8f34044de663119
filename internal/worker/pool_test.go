package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webhook-bridge/internal/delivery"
	"webhook-bridge/internal/metrics"
	"webhook-bridge/internal/model"
)

type acker struct {
	mu       sync.Mutex
	acked    []uint64
	rejected []uint64
	requeued []uint64
}

func (a *acker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *acker) Nack(tag uint64, _ bool, requeue bool) error {
	if !requeue {
		return a.Reject(tag, false)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requeued = append(a.requeued, tag)
	return nil
}

func (a *acker) Reject(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = append(a.rejected, tag)
	return nil
}

type fakeRouter struct {
	mu         sync.Mutex
	bot        string
	messages   []*model.MessageEvent
	tombstones []*model.TombstoneEvent
	onMessage  func()
}

func (f *fakeRouter) IsOwnEcho(sender string) bool { return sender == f.bot }

func (f *fakeRouter) HandleMessage(_ context.Context, msg *model.MessageEvent) []delivery.Outcome {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	hook := f.onMessage
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeRouter) HandleTombstone(_ context.Context, evt *model.TombstoneEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tombstones = append(f.tombstones, evt)
}

type fakeCommands struct {
	mu      sync.Mutex
	handled []*model.MessageEvent
}

func (f *fakeCommands) Matches(msg *model.MessageEvent) bool { return msg.IsCommand("!webhook") }

func (f *fakeCommands) Handle(_ context.Context, msg *model.MessageEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, msg)
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (f *fakeDedup) Seen(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.seen[id], nil
}

func (f *fakeDedup) Mark(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.seen[id] = true
	return nil
}

func (f *fakeDedup) Close() error { return nil }

func newDelivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)}
}

const (
	textMsg   = `{"type":"m.room.message","event_id":"$1","room_id":"!r","sender":"@alice:hs","origin_server_ts":1,"content":{"msgtype":"m.text","body":"hello"}}`
	cmdMsg    = `{"type":"m.room.message","event_id":"$2","room_id":"!r","sender":"@alice:hs","content":{"msgtype":"m.text","body":"!webhook list"}}`
	echoMsg   = `{"type":"m.room.message","event_id":"$3","room_id":"!r","sender":"@bot:hs","content":{"msgtype":"m.notice","body":"hi"}}`
	tombstone = `{"type":"m.room.tombstone","event_id":"$4","room_id":"!r","sender":"@alice:hs","content":{"replacement_room":"!new"}}`
	member    = `{"type":"m.room.member","event_id":"$5","room_id":"!r","sender":"@alice:hs","content":{}}`
	badMsg    = `{"type":"m.room.message","event_id":"$6","room_id":"!r","content":"oops"}`
)

func newTestPool(d *fakeDedup) (*WorkerPool, *fakeRouter, *fakeCommands) {
	r := &fakeRouter{bot: "@bot:hs"}
	c := &fakeCommands{}
	if d == nil {
		d = &fakeDedup{seen: map[string]bool{}}
	}
	return NewWorkerPool(2, r, c, d, nil), r, c
}

func TestHandleMessage_Dispatch(t *testing.T) {
	wp, r, c := newTestPool(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		body string
		kind string
		err  bool
	}{
		{"text message", textMsg, KindMessage, false},
		{"command", cmdMsg, KindCommand, false},
		{"own echo", echoMsg, KindIgnored, false},
		{"tombstone", tombstone, KindTombstone, false},
		{"other event type", member, KindIgnored, false},
		{"not json", "{", KindInvalid, true},
		{"missing room", `{"type":"m.room.message"}`, KindInvalid, true},
		{"bad content", badMsg, KindInvalid, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := wp.handleMessage(ctx, []byte(tt.body))
			assert.Equal(t, tt.kind, kind)
			if tt.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	require.Len(t, r.messages, 1)
	assert.Equal(t, "hello", r.messages[0].Body)
	require.Len(t, c.handled, 1)
	assert.Equal(t, "!webhook list", c.handled[0].Body)
	require.Len(t, r.tombstones, 1)
	assert.Equal(t, "!new", r.tombstones[0].ReplacementRoom)
}

func TestHandleMessage_Duplicate(t *testing.T) {
	wp, r, _ := newTestPool(nil)
	ctx := context.Background()

	kind, err := wp.handleMessage(ctx, []byte(textMsg))
	require.NoError(t, err)
	assert.Equal(t, KindMessage, kind)

	kind, err = wp.handleMessage(ctx, []byte(textMsg))
	require.NoError(t, err)
	assert.Equal(t, KindDuplicate, kind)

	assert.Len(t, r.messages, 1)
}

func TestHandleMessage_DedupFailsOpen(t *testing.T) {
	wp, r, _ := newTestPool(&fakeDedup{err: errors.New("redis down")})

	kind, err := wp.handleMessage(context.Background(), []byte(textMsg))
	require.NoError(t, err)
	assert.Equal(t, KindMessage, kind)
	assert.Len(t, r.messages, 1)
}

func TestPool_AckAndReject(t *testing.T) {
	wp, r, _ := newTestPool(nil)
	ack := &acker{}
	before := testutil.ToFloat64(metrics.EventsReceived.WithLabelValues(KindInvalid))

	wp.Start(context.Background())
	wp.Submit(newDelivery(ack, 1, textMsg))
	wp.Submit(newDelivery(ack, 2, "not json"))
	wp.Submit(newDelivery(ack, 3, member))
	wp.Submit(newDelivery(ack, 4, tombstone))
	wp.Stop()

	assert.ElementsMatch(t, []uint64{1, 3, 4}, ack.acked)
	assert.Equal(t, []uint64{2}, ack.rejected)
	assert.Len(t, r.messages, 1)
	assert.Len(t, r.tombstones, 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.EventsReceived.WithLabelValues(KindInvalid)))
}

func TestPool_CancelledWorkIsRequeued(t *testing.T) {
	wp, r, _ := newTestPool(nil)
	ack := &acker{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wp.Start(ctx)
	wp.Submit(newDelivery(ack, 1, textMsg))
	wp.Submit(newDelivery(ack, 2, "not json"))
	wp.Stop()

	assert.Empty(t, ack.acked)
	assert.Empty(t, ack.rejected)
	assert.ElementsMatch(t, []uint64{1, 2}, ack.requeued)
	assert.Empty(t, r.messages)
}

func TestPool_InterruptedEventIsHandledOnRedelivery(t *testing.T) {
	d := &fakeDedup{seen: map[string]bool{}}
	wp, r, _ := newTestPool(d)
	ack := &acker{}

	// Shutdown deadline expires while the event is being forwarded.
	ctx, cancel := context.WithCancel(context.Background())
	r.onMessage = cancel

	wp.process(ctx, newDelivery(ack, 1, textMsg))

	assert.Empty(t, ack.acked)
	assert.Equal(t, []uint64{1}, ack.requeued)
	assert.False(t, d.seen["$1"])

	r.mu.Lock()
	r.onMessage = nil
	r.mu.Unlock()

	wp.process(context.Background(), newDelivery(ack, 2, textMsg))

	assert.Equal(t, []uint64{2}, ack.acked)
	assert.True(t, d.seen["$1"])
	require.Len(t, r.messages, 2)
	assert.Equal(t, "hello", r.messages[1].Body)
}
