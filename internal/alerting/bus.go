package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"price-threshold-alerts/internal/alert"
	"price-threshold-alerts/internal/clock"
)

// NATSPublisher is satisfied by *nats.Conn.
type NATSPublisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// ConnectNATS dials a NATS server with reconnect logging.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, error) {
	log := logger.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name("pricewatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// NATSChannel publishes alert events on a subject.
type NATSChannel struct {
	conn    NATSPublisher
	subject string
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewNATSChannel constructs the NATS channel.
func NewNATSChannel(conn NATSPublisher, subject string, clk clock.Clock, logger zerolog.Logger) *NATSChannel {
	if clk == nil {
		clk = clock.Real{}
	}
	return &NATSChannel{
		conn:    conn,
		subject: subject,
		clock:   clk,
		logger:  logger.With().Str("component", "alert_nats").Logger(),
	}
}

func (n *NATSChannel) Name() string { return "nats" }

// Deliver publishes and flushes so a dead connection surfaces as an error.
func (n *NATSChannel) Deliver(ctx context.Context, c alert.Crossing) error {
	payload, err := json.Marshal(NewEvent(c, n.clock.Now()))
	if err != nil {
		return fmt.Errorf("marshal nats event: %w", err)
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

// RedisPublisher is satisfied by *redis.Client.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NewRedisClient builds a go-redis client from connection settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisChannel publishes alert events on a pub/sub channel.
type RedisChannel struct {
	client  RedisPublisher
	channel string
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewRedisChannel constructs the Redis channel.
func NewRedisChannel(client RedisPublisher, channel string, clk clock.Clock, logger zerolog.Logger) *RedisChannel {
	if clk == nil {
		clk = clock.Real{}
	}
	return &RedisChannel{
		client:  client,
		channel: channel,
		clock:   clk,
		logger:  logger.With().Str("component", "alert_redis").Logger(),
	}
}

func (r *RedisChannel) Name() string { return "redis" }

func (r *RedisChannel) Deliver(ctx context.Context, c alert.Crossing) error {
	payload, err := json.Marshal(NewEvent(c, r.clock.Now()))
	if err != nil {
		return fmt.Errorf("marshal redis event: %w", err)
	}
	receivers, err := r.client.Publish(ctx, r.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	if receivers == 0 {
		r.logger.Debug().Str("channel", r.channel).Msg("published with no subscribers")
	}
	return nil
}

var (
	_ Channel        = (*NATSChannel)(nil)
	_ Channel        = (*RedisChannel)(nil)
	_ NATSPublisher  = (*nats.Conn)(nil)
	_ RedisPublisher = (*redis.Client)(nil)
)
