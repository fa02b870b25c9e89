// Package dispatch delivers compiled commands to devices and carries device
// feedback back into the engine. Sinks: the log, a WebSocket hub for
// connected devices, and a Redis stream. Fanout combines them.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/actuation"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
)

// #region wire

// Message types on the device channel.
const (
	TypeCommand  = "command"
	TypeFeedback = "feedback"
	TypeAck      = "ack"
	TypeError    = "error"
)

// Message is the JSON envelope exchanged with devices. The engine sends
// command messages; devices answer with feedback, which the engine
// acknowledges with ack or error.
type Message struct {
	Type          string             `json:"type"`
	Command       *actuation.Command `json:"command,omitempty"`
	Feedback      *feedback.Event    `json:"feedback,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// FeedbackFunc receives feedback arriving from a device transport.
type FeedbackFunc func(ctx context.Context, ev feedback.Event) error

// Sink is anything that accepts compiled commands.
type Sink interface {
	Dispatch(ctx context.Context, cmds []actuation.Command) error
}

// ErrClosed is returned by sinks used after Close.
var ErrClosed = errors.New("dispatcher closed")

// #endregion wire

// #region config

// HubConfig tunes the WebSocket device hub.
type HubConfig struct {
	SendBuffer      int           // queued messages per device before drops
	WriteTimeout    time.Duration // per-message write deadline
	PingInterval    time.Duration // keepalive; a device silent for 2x this is dropped
	FeedbackTimeout time.Duration // bound on handling one feedback message
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:      32,
		WriteTimeout:    5 * time.Second,
		PingInterval:    30 * time.Second,
		FeedbackTimeout: 5 * time.Second,
	}
}

// RedisConfig configures the Redis command stream and feedback consumer.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	CommandStream  string
	FeedbackStream string
	Group          string
	Consumer       string
	MaxLen         int64         // approximate cap on the command stream; 0 is unbounded
	Block          time.Duration // XREADGROUP block time
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		CommandStream:  "aurum:commands",
		FeedbackStream: "aurum:feedback",
		Group:          "aurum-engine",
		Consumer:       "engine-1",
		MaxLen:         10000,
		Block:          time.Second,
	}
}

// #endregion config
