package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/audit"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/auth"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/config"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/hub"
	"github.com/richharvestCC/ScoreBoard-sub001/pkg/log"
)

const (
	authHeaderKey = "Authorization"
	bearerPrefix  = "Bearer "
	tokenParam    = "token"
)

// Gateway validates inbound connections and owns the connection table.
// Room membership is never mutated here directly; removals re-enter each
// room's serialized path through the hub.
type Gateway struct {
	validator auth.Validator
	hub       *hub.Hub
	wsCfg     config.WebSocketConfig
	authCfg   config.AuthConfig

	mu      sync.RWMutex
	clients map[string]*Client
}

// New creates a gateway.
func New(validator auth.Validator, h *hub.Hub, wsCfg config.WebSocketConfig, authCfg config.AuthConfig) *Gateway {
	return &Gateway{
		validator: validator,
		hub:       h,
		wsCfg:     wsCfg,
		authCfg:   authCfg,
		clients:   make(map[string]*Client),
	}
}

// Authenticate validates the request credential before any upgrade,
// bounded by the connect timeout.
func (g *Gateway) Authenticate(r *http.Request) (*domain.Identity, error) {
	token := r.URL.Query().Get(tokenParam)
	if token == "" {
		header := r.Header.Get(authHeaderKey)
		if strings.HasPrefix(header, bearerPrefix) {
			token = strings.TrimPrefix(header, bearerPrefix)
		}
	}
	if token == "" {
		return nil, domain.ErrInvalidCredential
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.authCfg.ConnectTimeout)
	defer cancel()

	return g.validator.Validate(ctx, token)
}

// Register creates a Client for an upgraded transport and adds it to the
// connection table.
func (g *Gateway) Register(conn *websocket.Conn, identity domain.Identity) *Client {
	c := newClient(uuid.New().String(), identity, conn, g, g.wsCfg)

	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()

	log.L().Info().
		Str(log.FieldConnID, c.id).
		Str(log.FieldUserID, identity.UserID).
		Msg("connection registered")
	return c
}

// Disconnect tears the connection down. Idempotent: duplicate close
// events (explicit leave, heartbeat timeout, transport error) run the
// teardown exactly once.
func (g *Gateway) Disconnect(c *Client) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		g.mu.Lock()
		delete(g.clients, c.id)
		g.mu.Unlock()

		g.hub.DropConnection(c.id)

		close(c.quit)
		if c.conn != nil {
			c.conn.Close()
		}

		log.L().Debug().Str(log.FieldConnID, c.id).Msg("connection closed")
		audit.Log(context.Background(), audit.ActionDisconnect, c.identity.UserID, "connection closed")
	})
}

// Count returns the number of live connections.
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// CloseAll disconnects every live connection. Used during shutdown.
func (g *Gateway) CloseAll() {
	g.mu.RLock()
	clients := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.RUnlock()

	for _, c := range clients {
		g.Disconnect(c)
	}
}

func marshalMessage(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}
