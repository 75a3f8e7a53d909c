package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/tasklists/internal/model"
)

// Message is the JSON payload published to Redis for every list event.
type Message struct {
	Kind Kind        `json:"kind"`
	ID   string      `json:"id"`
	List *model.List `json:"list"`
}

// RedisPublisher forwards relay events to a Redis pub/sub channel so that
// other processes (workers, a websocket fan-out, another API replica) can
// observe list changes.
//
// It is just another relay listener: Attach subscribes it to "save" and
// "remove" and returns a function that detaches it again.
//
// FAILURE HANDLING:
// Publishing is best-effort. The list has already been persisted when the
// event fires, so a Redis outage is logged and otherwise ignored.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisPublisher creates a publisher for channel (e.g. "lists.events").
func NewRedisPublisher(client redis.UniversalClient, channel string, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Attach subscribes the publisher to every save and remove event on r.
func (p *RedisPublisher) Attach(r *Relay) (detach func()) {
	unsubSave := r.Subscribe(string(Save), p.Publish)
	unsubRemove := r.Subscribe(string(Remove), p.Publish)
	return func() {
		unsubSave()
		unsubRemove()
	}
}

// Publish sends one event. It has the Listener signature so it can be
// subscribed directly.
func (p *RedisPublisher) Publish(kind Kind, list *model.List) {
	payload, err := json.Marshal(Message{Kind: kind, ID: list.ID, List: list})
	if err != nil {
		p.logger.Error("failed to encode list event",
			slog.String("kind", string(kind)),
			slog.String("id", list.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("failed to publish list event",
			slog.String("channel", p.channel),
			slog.String("kind", string(kind)),
			slog.String("id", list.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	p.logger.Debug("list event published",
		slog.String("channel", p.channel),
		slog.String("kind", string(kind)),
		slog.String("id", list.ID),
	)
}
