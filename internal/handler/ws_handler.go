package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/audit"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/gateway"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/hub"
	"github.com/richharvestCC/ScoreBoard-sub001/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades live and feed connections and dispatches inbound
// operations to the hub. Malformed payloads are rejected here and never
// reach a room actor.
type WSHandler struct {
	gateway *gateway.Gateway
	hub     *hub.Hub
}

func NewWSHandler(gw *gateway.Gateway, h *hub.Hub) *WSHandler {
	return &WSHandler{
		gateway: gw,
		hub:     h,
	}
}

// HandleLive serves the per-match client endpoint.
func (h *WSHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	client, ok := h.authenticateAndUpgrade(w, r)
	if !ok {
		return
	}

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

// HandleFeed serves the dashboard-only lifecycle feed.
func (h *WSHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	client, ok := h.authenticateAndUpgrade(w, r)
	if !ok {
		return
	}

	h.hub.Feed().Subscribe(client)

	go client.WritePump()
	go client.ReadPump(h.handleFeedMessage)
}

func (h *WSHandler) authenticateAndUpgrade(w http.ResponseWriter, r *http.Request) (*gateway.Client, bool) {
	identity, err := h.gateway.Authenticate(r)
	if err != nil {
		audit.Log(r.Context(), audit.ActionAuthFailed, "", "connection refused")
		status := http.StatusUnauthorized
		if !errors.Is(err, domain.ErrInvalidCredential) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, http.StatusText(status), status)
		return nil, false
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return nil, false
	}

	client := h.gateway.Register(conn, *identity)
	audit.Log(r.Context(), audit.ActionConnect, identity.UserID, "connection established")
	return client, true
}

func (h *WSHandler) handleMessage(client *gateway.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypeJoin:
		var msg domain.JoinMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.MatchID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "invalid join message"))
			return
		}
		if msg.Role == "" {
			msg.Role = domain.RoleViewer
		}
		if msg.Role != domain.RoleViewer && msg.Role != domain.RoleManager {
			client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "unknown role"))
			return
		}
		h.handleJoin(ctx, client, msg)

	case domain.MsgTypeLeave:
		var msg domain.LeaveMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.MatchID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "invalid leave message"))
			return
		}
		if err := h.hub.Leave(ctx, client.ID(), msg.MatchID); err != nil {
			h.sendError(client, msg.MatchID, err)
			return
		}
		audit.LogWithMatch(ctx, audit.ActionLeave, client.Identity().UserID, msg.MatchID, "left match")

	case domain.MsgTypeUpdateScore:
		var msg domain.UpdateScoreMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.MatchID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "invalid update_score message"))
			return
		}
		if msg.HomeScore < 0 || msg.AwayScore < 0 {
			client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "scores must not be negative"))
			return
		}
		if _, err := h.hub.UpdateScore(ctx, client.ID(), msg.MatchID, msg.HomeScore, msg.AwayScore, msg.Minute); err != nil {
			h.sendError(client, msg.MatchID, err)
			return
		}
		audit.LogWithMatch(ctx, audit.ActionUpdateScore, client.Identity().UserID, msg.MatchID, "score updated")

	case domain.MsgTypeAddEvent:
		var msg domain.AddEventMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.MatchID == "" || msg.EventType == "" {
			client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "invalid add_event message"))
			return
		}
		if msg.EventType == domain.EventTypeScore {
			client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "reserved event type"))
			return
		}
		if _, err := h.hub.AddEvent(ctx, client.ID(), msg.MatchID, msg.EventType, msg.Payload, msg.ClientEventID); err != nil {
			h.sendError(client, msg.MatchID, err)
			return
		}
		audit.LogWithMatch(ctx, audit.ActionAddEvent, client.Identity().UserID, msg.MatchID, "event added")

	case domain.MsgTypeChangeStatus:
		var msg domain.ChangeStatusMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.MatchID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "invalid change_status message"))
			return
		}
		if !msg.Status.Valid() {
			client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "unknown status"))
			return
		}
		if _, err := h.hub.ChangeStatus(ctx, client.ID(), msg.MatchID, msg.Status); err != nil {
			h.sendError(client, msg.MatchID, err)
			return
		}
		audit.LogWithMatch(ctx, audit.ActionChangeStatus, client.Identity().UserID, msg.MatchID, "status changed")

	case domain.MsgTypePing:
		client.SendMessage(domain.BaseMessage{Type: domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "unknown message type"))
	}
}

func (h *WSHandler) handleJoin(ctx context.Context, client *gateway.Client, msg domain.JoinMessage) {
	snapshot, role, err := h.hub.Join(ctx, client, msg.MatchID, msg.Role)
	if err != nil {
		h.sendError(client, msg.MatchID, err)
		return
	}

	client.SendMessage(&domain.JoinedMessage{
		Type:     domain.MsgTypeJoined,
		MatchID:  msg.MatchID,
		Role:     role,
		Snapshot: snapshot,
	})
	audit.LogWithMatch(ctx, audit.ActionJoin, client.Identity().UserID, msg.MatchID, "joined match")
}

// handleFeedMessage only answers pings; the feed is push-only.
func (h *WSHandler) handleFeedMessage(client *gateway.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil || base.Type != domain.MsgTypePing {
		client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "feed is read-only"))
		return
	}
	client.SendMessage(domain.BaseMessage{Type: domain.MsgTypePong})
}

func (h *WSHandler) sendError(client *gateway.Client, matchID string, err error) {
	client.SendMessage(&domain.ErrorMessage{
		Type:    domain.MsgTypeError,
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
		MatchID: matchID,
	})
}
