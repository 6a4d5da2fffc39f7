package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// redisPublisher is the part of a go-redis client the sink uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSink publishes each plate on a channel and keeps the last plate per
// gate mode under <channel>:last:<mode>.
type RedisSink struct {
	client  redisPublisher
	closer  func() error
	channel string
}

// RedisOptions configures NewRedisSink.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

// NewRedisSink connects to Redis. An unreachable server is logged, not
// fatal; go-redis reconnects on the next command.
func NewRedisSink(opts RedisOptions, log logrus.FieldLogger) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log = log.WithField("redis", opts.Address)
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis not reachable yet")
	} else {
		log.Info("connected to redis")
	}

	return &RedisSink{client: client, closer: client.Close, channel: opts.Channel}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// LastKey is the key holding the last plate for mode.
func (s *RedisSink) LastKey(mode string) string {
	return fmt.Sprintf("%s:last:%s", s.channel, mode)
}

// Send implements Sink.
func (s *RedisSink) Send(ctx context.Context, ev Event) error {
	msg, err := encodeMessage(ev)
	if err != nil {
		return err
	}

	if err := s.client.Publish(ctx, s.channel, msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", s.channel, err)
	}
	if err := s.client.Set(ctx, s.LastKey(ev.Mode), msg, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.LastKey(ev.Mode), err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
