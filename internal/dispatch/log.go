package dispatch

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/actuation"
)

// LogDispatcher writes each command to the global logger. Useful when no
// device is attached.
type LogDispatcher struct{}

// Dispatch logs cmds at info level.
func (LogDispatcher) Dispatch(_ context.Context, cmds []actuation.Command) error {
	for _, c := range cmds {
		payload, err := json.Marshal(c.Payload)
		if err != nil {
			return err
		}
		log.Info().Str("component", "dispatch").
			Str("device", c.Device).
			Str("intervention", c.InterventionID).
			Str("correlation", c.CorrelationID).
			RawJSON("payload", payload).
			Msg("command")
	}
	return nil
}
