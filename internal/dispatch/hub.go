package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/actuation"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/metrics"
)

// #region hub

// Hub is the device channel: devices connect over WebSocket, receive the
// commands addressed to them and send feedback back. A device may restrict
// what it receives with ?devices=lamp,speaker; without it, it receives all.
type Hub struct {
	cfg        HubConfig
	upgrader   websocket.Upgrader
	onFeedback FeedbackFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*deviceConn]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type deviceConn struct {
	conn    *websocket.Conn
	devices map[string]bool
	send    chan []byte
}

func (c *deviceConn) wants(device string) bool {
	return len(c.devices) == 0 || c.devices[device]
}

// NewHub creates a Hub. onFeedback may be nil, in which case device feedback
// is answered with an error message.
func NewHub(cfg HubConfig, onFeedback FeedbackFunc) *Hub {
	def := DefaultHubConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.FeedbackTimeout <= 0 {
		cfg.FeedbackTimeout = def.FeedbackTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		onFeedback: onFeedback,
		ctx:        ctx,
		cancel:     cancel,
		clients:    make(map[*deviceConn]struct{}),
	}
}

// Clients returns the number of connected devices.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every device and waits for their goroutines.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := make([]*deviceConn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.cancel()
	for _, c := range conns {
		h.unregister(c)
	}
	h.wg.Wait()
	return nil
}

// #endregion hub

// #region dispatch

// Dispatch queues each command for every device that wants it. A device
// whose buffer is full misses the command; the drop is reported in the
// returned error.
func (h *Hub) Dispatch(_ context.Context, cmds []actuation.Command) error {
	frames := make([][]byte, len(cmds))
	for i := range cmds {
		data, err := json.Marshal(Message{Type: TypeCommand, Command: &cmds[i]})
		if err != nil {
			return fmt.Errorf("encode command: %w", err)
		}
		frames[i] = data
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	dropped := 0
	for c := range h.clients {
		for i, cmd := range cmds {
			if !c.wants(cmd.Device) {
				continue
			}
			select {
			case c.send <- frames[i]:
			default:
				dropped++
			}
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%d command(s) dropped: device send buffer full", dropped)
	}
	return nil
}

// #endregion dispatch

// #region connection

// ServeHTTP upgrades the request and serves the device until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "device hub closed", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "hub").Msg("websocket upgrade failed")
		return
	}
	c := &deviceConn{conn: conn, send: make(chan []byte, h.cfg.SendBuffer)}
	if raw := r.URL.Query().Get("devices"); raw != "" {
		c.devices = make(map[string]bool)
		for _, d := range strings.Split(raw, ",") {
			if d = strings.TrimSpace(d); d != "" {
				c.devices[d] = true
			}
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	metrics.DeviceConnections.Inc()
	log.Info().Str("component", "hub").Str("remote", r.RemoteAddr).Int("filters", len(c.devices)).Msg("device connected")

	go h.writeLoop(c)
	h.readLoop(c)
	h.unregister(c)
	log.Info().Str("component", "hub").Str("remote", r.RemoteAddr).Msg("device disconnected")
}

// unregister removes c once. Closing send stops the writer, which closes the
// connection and so unblocks the reader.
func (h *Hub) unregister(c *deviceConn) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	metrics.DeviceConnections.Dec()
}

func (h *Hub) writeLoop(c *deviceConn) {
	defer h.wg.Done()
	defer c.conn.Close()

	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		t := time.NewTicker(h.cfg.PingInterval)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("component", "hub").Msg("device write failed")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *deviceConn) {
	if h.cfg.PingInterval > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.cfg.PingInterval))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(2 * h.cfg.PingInterval))
		})
	}
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("component", "hub").Msg("device read failed")
			}
			return
		}
		h.reply(c, h.handle(msg))
	}
}

func (h *Hub) handle(msg Message) Message {
	if msg.Type != TypeFeedback {
		return Message{Type: TypeError, Error: fmt.Sprintf("unsupported message type %q", msg.Type)}
	}
	if msg.Feedback == nil || msg.Feedback.CorrelationID == "" {
		return Message{Type: TypeError, Error: "feedback needs a correlation_id"}
	}
	id := msg.Feedback.CorrelationID
	if h.onFeedback == nil {
		return Message{Type: TypeError, CorrelationID: id, Error: "feedback not accepted on this channel"}
	}
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.FeedbackTimeout)
	defer cancel()
	if err := h.onFeedback(ctx, *msg.Feedback); err != nil {
		log.Warn().Err(err).Str("component", "hub").Str("correlation", id).Msg("device feedback rejected")
		return Message{Type: TypeError, CorrelationID: id, Error: err.Error()}
	}
	return Message{Type: TypeAck, CorrelationID: id}
}

func (h *Hub) reply(c *deviceConn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("component", "hub").Msg("reply dropped: device send buffer full")
	}
}

// #endregion connection
