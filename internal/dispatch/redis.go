package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/actuation"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
)

// #region client

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// #endregion client

// #region command-stream

// RedisStream appends each command to a Redis stream for device bridges
// that consume it.
type RedisStream struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewRedisStream publishes to cfg.CommandStream.
func NewRedisStream(rdb *redis.Client, cfg RedisConfig) *RedisStream {
	return &RedisStream{rdb: rdb, stream: cfg.CommandStream, maxLen: cfg.MaxLen}
}

// Dispatch XADDs every command in one pipeline. Entry fields are
// correlation_id, device and command (the JSON-encoded command).
func (s *RedisStream) Dispatch(ctx context.Context, cmds []actuation.Command) error {
	if len(cmds) == 0 {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range cmds {
			data, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("encode command: %w", err)
			}
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: s.stream,
				MaxLen: s.maxLen,
				Approx: s.maxLen > 0,
				Values: map[string]interface{}{
					"correlation_id": c.CorrelationID,
					"device":         c.Device,
					"command":        string(data),
				},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// DecodeCommand reads a command back from a stream entry.
func DecodeCommand(values map[string]interface{}) (actuation.Command, error) {
	raw, _ := values["command"].(string)
	if raw == "" {
		return actuation.Command{}, errors.New("stream entry has no command field")
	}
	var c actuation.Command
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return actuation.Command{}, fmt.Errorf("decode command: %w", err)
	}
	return c, nil
}

// #endregion command-stream

// #region feedback-stream

// PublishFeedback appends ev to stream in the shape FeedbackConsumer reads.
func PublishFeedback(ctx context.Context, rdb *redis.Client, stream string, ev feedback.Event) (string, error) {
	values := map[string]interface{}{
		"correlation_id": ev.CorrelationID,
		"outcome":        string(ev.Outcome),
	}
	if !ev.Timestamp.IsZero() {
		values["timestamp"] = ev.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	id, err := rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// DecodeFeedback reads a feedback event from a stream entry. A missing
// timestamp is left zero for the engine to fill.
func DecodeFeedback(values map[string]interface{}) (feedback.Event, error) {
	id, _ := values["correlation_id"].(string)
	outcome, _ := values["outcome"].(string)
	if id == "" || outcome == "" {
		return feedback.Event{}, errors.New("feedback entry needs correlation_id and outcome")
	}
	ev := feedback.Event{CorrelationID: id, Outcome: feedback.Outcome(outcome)}
	if raw, _ := values["timestamp"].(string); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return feedback.Event{}, fmt.Errorf("feedback timestamp: %w", err)
		}
		ev.Timestamp = ts
	}
	return ev, nil
}

// FeedbackConsumer reads feedback events from a stream through a consumer
// group and hands each to a FeedbackFunc. Entries are acknowledged once
// handled, whether or not the handler accepted them.
type FeedbackConsumer struct {
	rdb    *redis.Client
	cfg    RedisConfig
	handle FeedbackFunc
}

// NewFeedbackConsumer creates a consumer over cfg.FeedbackStream.
func NewFeedbackConsumer(rdb *redis.Client, cfg RedisConfig, handle FeedbackFunc) *FeedbackConsumer {
	if cfg.Block <= 0 {
		cfg.Block = DefaultRedisConfig().Block
	}
	return &FeedbackConsumer{rdb: rdb, cfg: cfg, handle: handle}
}

// Run consumes until ctx ends. It returns nil on cancellation and an error
// only when the consumer group cannot be created.
func (c *FeedbackConsumer) Run(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.FeedbackStream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.cfg.Group, err)
	}
	logger := log.With().Str("component", "feedback-stream").Str("stream", c.cfg.FeedbackStream).Logger()
	logger.Info().Str("group", c.cfg.Group).Str("consumer", c.cfg.Consumer).Msg("consuming feedback")

	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.FeedbackStream, ">"},
			Count:    10,
			Block:    c.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn().Err(err).Msg("read failed, backing off")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, s := range streams {
			for _, msg := range s.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *FeedbackConsumer) process(ctx context.Context, msg redis.XMessage) {
	ev, err := DecodeFeedback(msg.Values)
	if err != nil {
		log.Warn().Err(err).Str("component", "feedback-stream").Str("entry", msg.ID).Msg("malformed feedback entry")
	} else if err := c.handle(ctx, ev); err != nil {
		log.Warn().Err(err).Str("component", "feedback-stream").Str("correlation", ev.CorrelationID).Msg("feedback rejected")
	}
	if err := c.rdb.XAck(context.WithoutCancel(ctx), c.cfg.FeedbackStream, c.cfg.Group, msg.ID).Err(); err != nil {
		log.Warn().Err(err).Str("component", "feedback-stream").Str("entry", msg.ID).Msg("ack failed")
	}
}

// #endregion feedback-stream
