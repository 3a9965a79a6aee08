package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/config"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
	"github.com/richharvestCC/ScoreBoard-sub001/pkg/log"
)

// Client is one live transport instance bound to an authenticated
// identity. A reconnect always produces a new Client; there is no session
// continuity across transports.
type Client struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	gw       *Gateway
	cfg      config.WebSocketConfig

	send chan []byte
	quit chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func newClient(id string, identity domain.Identity, conn *websocket.Conn, gw *Gateway, cfg config.WebSocketConfig) *Client {
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		gw:       gw,
		cfg:      cfg,
		send:     make(chan []byte, cfg.SendBufferSize),
		quit:     make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Identity returns the authenticated principal.
func (c *Client) Identity() domain.Identity { return c.identity }

// Closed reports whether the connection has been torn down.
func (c *Client) Closed() bool { return c.closed.Load() }

// TrySend enqueues a frame without blocking. False means the outbound
// queue is full or the connection is closed.
func (c *Client) TrySend(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Kick force-disconnects the client without blocking the caller; safe to
// invoke from room actor loops.
func (c *Client) Kick(reason string) {
	log.L().Warn().
		Str(log.FieldConnID, c.id).
		Str("reason", reason).
		Msg("connection kicked")
	go c.gw.Disconnect(c)
}

// SendMessage marshals and enqueues a message, disconnecting the client
// on overflow.
func (c *Client) SendMessage(msg interface{}) {
	data, err := marshalMessage(msg)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldConnID, c.id).Msg("failed to marshal outbound message")
		return
	}
	if !c.TrySend(data) {
		c.Kick("outbound queue overflow")
	}
}

// ReadPump consumes inbound frames until the transport dies or the read
// deadline (two missed heartbeat intervals) expires, then triggers the
// idempotent disconnect path.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer c.gw.Disconnect(c)

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait()))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.L().Debug().Err(err).Str(log.FieldConnID, c.id).Msg("websocket read error")
			}
			return
		}

		// Any inbound frame counts as liveness.
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait()))

		handler(c, message)
	}
}

// WritePump writes queued frames and pings on the heartbeat interval.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
