// Package broker publishes outbound notifications and SLA commands to Redis
// Streams. Consumers live in other services.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/itasset/ticket-workflow/internal/domain"
)

const defaultMaxLen = 10000

// StreamPublisher appends entries to one Redis stream.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamPublisher builds a publisher for stream.
func NewStreamPublisher(client redis.Cmdable, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: defaultMaxLen}
}

// Publish appends values and returns the entry id.
func (p *StreamPublisher) Publish(ctx context.Context, values map[string]any) (string, error) {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}

// notificationValues flattens a notification into stream fields. payload is stored as JSON.
func notificationValues(userID, event string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}
	return map[string]any{
		"user_id": userID,
		"event":   event,
		"payload": string(body),
	}, nil
}

func slaValues(ticketID string, mode domain.SLAResetMode) map[string]any {
	return map[string]any{
		"command":   "apply_reset_mode",
		"ticket_id": ticketID,
		"mode":      string(mode),
	}
}

// RedisNotifier delivers notifications through a stream.
type RedisNotifier struct {
	publisher *StreamPublisher
}

// NewRedisNotifier builds a notifier writing to stream.
func NewRedisNotifier(client redis.Cmdable, stream string) *RedisNotifier {
	return &RedisNotifier{publisher: NewStreamPublisher(client, stream)}
}

// Notify publishes a notification for userID.
func (n *RedisNotifier) Notify(ctx context.Context, userID, event string, payload any) error {
	values, err := notificationValues(userID, event, payload)
	if err != nil {
		return err
	}
	_, err = n.publisher.Publish(ctx, values)
	return err
}

// RedisSLAClient sends SLA clock commands through a stream.
type RedisSLAClient struct {
	publisher *StreamPublisher
}

// NewRedisSLAClient builds an SLA client writing to stream.
func NewRedisSLAClient(client redis.Cmdable, stream string) *RedisSLAClient {
	return &RedisSLAClient{publisher: NewStreamPublisher(client, stream)}
}

// ApplyResetMode asks the SLA service to apply mode to ticketID.
func (c *RedisSLAClient) ApplyResetMode(ctx context.Context, ticketID string, mode domain.SLAResetMode) error {
	_, err := c.publisher.Publish(ctx, slaValues(ticketID, mode))
	return err
}

// LogNotifier only logs notifications. Used when Redis is not configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID, event string, payload any) error {
	n.logger.Info("notification",
		zap.String("user_id", userID),
		zap.String("event", event),
		zap.Any("payload", payload))
	return nil
}

// LogSLAClient only logs SLA commands.
type LogSLAClient struct {
	logger *zap.Logger
}

// NewLogSLAClient builds a LogSLAClient.
func NewLogSLAClient(logger *zap.Logger) *LogSLAClient {
	return &LogSLAClient{logger: logger}
}

func (c *LogSLAClient) ApplyResetMode(ctx context.Context, ticketID string, mode domain.SLAResetMode) error {
	c.logger.Info("sla reset mode",
		zap.String("ticket_id", ticketID),
		zap.String("mode", string(mode)))
	return nil
}
