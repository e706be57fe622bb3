package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "dextra:events"

const emitTimeout = 2 * time.Second

// RedisEmitter appends events to a Redis stream.
type RedisEmitter struct {
	client *redis.Client
	stream string
	log    *logrus.Logger
}

// NewRedisEmitter creates an emitter writing to the given stream; an empty
// stream name uses DefaultStream.
func NewRedisEmitter(client *redis.Client, stream string, log *logrus.Logger) *RedisEmitter {
	if stream == "" {
		stream = DefaultStream
	}
	if log == nil {
		log = logrus.New()
	}
	return &RedisEmitter{client: client, stream: stream, log: log}
}

// Emit appends the event via XADD. Failures are logged and swallowed so an
// observability outage never aborts an execution.
func (r *RedisEmitter) Emit(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev.Fields)
	if err != nil {
		r.log.WithError(err).WithField("event_type", ev.Type).Error("Failed to encode event payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"type":      string(ev.Type),
			"timestamp": ev.Timestamp.Format(time.RFC3339Nano),
			"payload":   string(payload),
		},
	}).Err()
	if err != nil {
		r.log.WithError(err).WithField("event_type", ev.Type).Warn("Failed to emit event")
	}
}
