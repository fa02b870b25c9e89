package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/dispatch"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
)

// #region device

// deviceOptions configure the simulated device.
type deviceOptions struct {
	url     string
	devices string
	reply   string
	count   int
}

// newDeviceCmd connects to a running engine's hub as a device, prints each
// command it receives and optionally answers it with feedback.
func newDeviceCmd() *cobra.Command {
	var o deviceOptions
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Connect to the device hub and print incoming commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDevice(ctx, o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.url, "url", "ws://localhost:8080/ws", "hub WebSocket URL")
	cmd.Flags().StringVar(&o.devices, "devices", "", "comma-separated device classes to receive (default: all)")
	cmd.Flags().StringVar(&o.reply, "reply", "", "answer every command with this feedback outcome")
	cmd.Flags().IntVar(&o.count, "count", 0, "exit after N commands (0: run until interrupted)")
	return cmd
}

func runDevice(ctx context.Context, o deviceOptions, out io.Writer) error {
	if o.reply != "" && !feedback.Outcome(o.reply).Valid() {
		return fmt.Errorf("unknown outcome %q", o.reply)
	}
	u, err := url.Parse(o.url)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if o.devices != "" {
		q := u.Query()
		q.Set("devices", o.devices)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	received, pending := 0, 0
	for {
		var msg dispatch.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case dispatch.TypeCommand:
			if msg.Command == nil {
				continue
			}
			received++
			c := msg.Command
			fmt.Fprintf(out, "%s %s %v (correlation %s)\n", c.Device, c.InterventionID, c.Payload, c.CorrelationID)
			if o.reply != "" {
				err := conn.WriteJSON(dispatch.Message{
					Type: dispatch.TypeFeedback,
					Feedback: &feedback.Event{
						CorrelationID: c.CorrelationID,
						Outcome:       feedback.Outcome(o.reply),
						Timestamp:     time.Now().UTC(),
					},
				})
				if err != nil {
					return fmt.Errorf("send feedback: %w", err)
				}
				pending++
			}
		case dispatch.TypeAck:
			pending--
			fmt.Fprintf(out, "ack %s\n", msg.CorrelationID)
		case dispatch.TypeError:
			pending--
			fmt.Fprintf(out, "error %s: %s\n", msg.CorrelationID, msg.Error)
		}

		if o.count > 0 && received >= o.count && pending <= 0 {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil
		}
	}
}

// #endregion device
