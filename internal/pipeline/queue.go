package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/lifecycle"
)

const eventTypePrefix = "aura.pipeline."

// QueueKey returns the default list key for a stage queue.
func QueueKey(stage Stage) string {
	return "aura:queue:" + string(stage)
}

// NewEvent wraps payload in a CloudEvents envelope addressed to next.
func NewEvent(next Stage, documentID uuid.UUID, payload any) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource("/aura/" + string(next.Previous()))
	event.SetType(eventTypePrefix + string(next))
	event.SetSubject(documentID.String())
	event.SetTime(time.Now().UTC())
	if err := event.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return event, fmt.Errorf("set event data: %w", err)
	}
	return event, nil
}

// QueueNotifier pushes payloads onto per-stage Redis lists.
type QueueNotifier struct {
	client  redis.Cmdable
	key     func(Stage) string
	timeout time.Duration
	lc      *lifecycle.Coordinator
	logger  *slog.Logger
}

// NewQueueNotifier creates a QueueNotifier. A nil key uses QueueKey.
func NewQueueNotifier(client redis.Cmdable, key func(Stage) string, lc *lifecycle.Coordinator, logger *slog.Logger) *QueueNotifier {
	if key == nil {
		key = QueueKey
	}
	return &QueueNotifier{
		client:  client,
		key:     key,
		timeout: 5 * time.Second,
		lc:      lc,
		logger:  logger.With("system", "notifier", "transport", "redis"),
	}
}

func (n *QueueNotifier) Notify(ctx context.Context, next Stage, documentID uuid.UUID, payload any) {
	event, err := NewEvent(next, documentID, payload)
	if err != nil {
		n.logger.Error("build event failed", "stage", next, "document_id", documentID, "error", err)
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("encode event failed", "stage", next, "document_id", documentID, "error", err)
		return
	}

	n.lc.Go(func(lctx context.Context) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(lctx), n.timeout)
		defer cancel()

		if err := n.client.LPush(ctx, n.key(next), data).Err(); err != nil {
			n.logger.Warn("enqueue failed", "stage", next, "document_id", documentID, "error", err)
			return
		}
		n.logger.Info("next stage enqueued", "stage", next, "document_id", documentID, "event_id", event.ID())
	})
}

// Receiver accepts a decoded payload for a hosted stage.
type Receiver interface {
	Receive(ctx context.Context, data []byte) error
}

// Consumer drains the queues of the stages hosted by this process.
type Consumer struct {
	client    redis.Cmdable
	key       func(Stage) string
	wait      time.Duration
	receivers map[Stage]Receiver
	logger    *slog.Logger
}

// NewConsumer creates a Consumer. A nil key uses QueueKey.
func NewConsumer(client redis.Cmdable, key func(Stage) string, logger *slog.Logger) *Consumer {
	if key == nil {
		key = QueueKey
	}
	return &Consumer{
		client:    client,
		key:       key,
		wait:      5 * time.Second,
		receivers: make(map[Stage]Receiver),
		logger:    logger.With("system", "consumer"),
	}
}

// Register routes events for stage to r.
func (c *Consumer) Register(stage Stage, r Receiver) {
	c.receivers[stage] = r
}

// ProcessingKey returns the list holding events taken from queue but not
// yet acknowledged.
func ProcessingKey(queue string) string {
	return queue + ":processing"
}

// ErrRejected marks an event that can never be delivered: it does not decode
// or is addressed to another stage. Rejected events are dropped.
var ErrRejected = errors.New("event rejected")

// Start returns unacknowledged events to their queues, then launches one
// polling loop per registered stage on lc.
func (c *Consumer) Start(lc *lifecycle.Coordinator) error {
	for stage, r := range c.receivers {
		lc.Go(func(ctx context.Context) {
			if n, err := c.Recover(ctx, stage); err != nil {
				c.logger.Warn("recover unacknowledged events", "stage", stage, "error", err)
			} else if n > 0 {
				c.logger.Info("requeued unacknowledged events", "stage", stage, "count", n)
			}
			c.loop(ctx, stage, r)
		})
		c.logger.Info("consuming", "stage", stage, "queue", c.key(stage))
	}
	return nil
}

// Recover moves every event left in the processing list back to the head of
// the stage queue.
func (c *Consumer) Recover(ctx context.Context, stage Stage) (int, error) {
	key := c.key(stage)
	n := 0
	for {
		err := c.client.LMove(ctx, ProcessingKey(key), key, "RIGHT", "RIGHT").Err()
		switch {
		case errors.Is(err, redis.Nil):
			return n, nil
		case err != nil:
			return n, err
		}
		n++
	}
}

func (c *Consumer) loop(ctx context.Context, stage Stage, r Receiver) {
	key := c.key(stage)
	for ctx.Err() == nil {
		raw, err := c.client.BLMove(ctx, key, ProcessingKey(key), "RIGHT", "LEFT", c.wait).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.logger.Warn("dequeue failed", "stage", stage, "error", err)
			pause(ctx, time.Second)
			continue
		}
		if !c.Handle(ctx, stage, r, raw) {
			pause(ctx, time.Second)
		}
	}
}

// Handle dispatches one event taken from the processing list. Delivered and
// rejected events are acknowledged; any other failure puts the event back at
// the head of the queue. It reports whether the event was acknowledged.
func (c *Consumer) Handle(ctx context.Context, next Stage, r Receiver, raw string) bool {
	key := c.key(next)
	err := c.Dispatch(ctx, next, r, []byte(raw))

	// settle even when shutdown cancelled ctx mid-dispatch
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err != nil && !errors.Is(err, ErrRejected) && !errors.Is(err, stage.ErrValidation) {
		c.logger.Warn("delivery failed, requeued", "stage", next, "error", err)
		// requeue precedes ack: a crash in between duplicates the event
		if perr := c.client.RPush(sctx, key, raw).Err(); perr != nil {
			c.logger.Error("requeue failed", "stage", next, "error", perr)
			return false
		}
		c.ack(sctx, next, raw)
		return false
	}

	if err != nil {
		c.logger.Warn("event dropped", "stage", next, "error", err)
	}
	c.ack(sctx, next, raw)
	return true
}

func (c *Consumer) ack(ctx context.Context, next Stage, raw string) {
	if err := c.client.LRem(ctx, ProcessingKey(c.key(next)), 1, raw).Err(); err != nil {
		c.logger.Error("acknowledge failed", "stage", next, "error", err)
	}
}

func pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Dispatch decodes one queued envelope and hands its data to r.
func (c *Consumer) Dispatch(ctx context.Context, stage Stage, r Receiver, raw []byte) error {
	var event cloudevents.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("%w: decode event: %w", ErrRejected, err)
	}
	if want := eventTypePrefix + string(stage); event.Type() != want {
		return fmt.Errorf("%w: unexpected event type %q, want %q", ErrRejected, event.Type(), want)
	}
	if err := r.Receive(ctx, event.Data()); err != nil {
		return fmt.Errorf("receive %s: %w", event.Subject(), err)
	}
	c.logger.Info("event received", "stage", stage, "document_id", event.Subject(), "event_id", event.ID())
	return nil
}
