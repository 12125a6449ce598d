package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"botfleet-api/internal/events"
	"botfleet-api/internal/logging"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher is the part of a Redis client the relay needs.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisRelay republishes every bus event as JSON on a Redis channel so other
// processes can follow the fleet.
type RedisRelay struct {
	sub     *events.Subscription
	client  RedisPublisher
	channel string
	logger  *log.Logger

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRedisRelay subscribes to bus and starts relaying to channel.
func NewRedisRelay(bus *events.Bus, client RedisPublisher, channel string, buffer int, logger *log.Logger) *RedisRelay {
	if channel == "" {
		channel = "botfleet:events"
	}
	r := &RedisRelay{
		sub:     bus.Subscribe("redis", buffer),
		client:  client,
		channel: channel,
		logger:  logging.Component(logger, "RedisRelay"),
	}
	r.wg.Add(1)
	go r.run()
	r.logger.Info("started", "channel", channel)
	return r
}

func (r *RedisRelay) run() {
	defer r.wg.Done()
	for ev := range r.sub.C() {
		payload, err := json.Marshal(ev)
		if err != nil {
			r.logger.Error("failed to encode event", "type", ev.Type, "err", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = r.client.Publish(ctx, r.channel, payload).Err()
		cancel()
		if err != nil {
			r.logger.Warn("publish failed", "type", ev.Type, "account", ev.Account, "err", err)
		}
	}
}

// Close stops relaying. Events already taken from the bus are still published.
func (r *RedisRelay) Close() {
	r.stopOnce.Do(func() {
		r.sub.Close()
		r.wg.Wait()
	})
}
