package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkraev/relay/internal/app"
	"github.com/mkraev/relay/internal/core"
	"github.com/mkraev/relay/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller handles the subscriber websocket endpoint: upgrade, the
// join/leave/ping envelope switch, admission gating and resync.
type Controller struct {
	Hub   *Hub
	Gate  core.Gate
	Coord *app.Coordinator

	limiter    *JoinRateLimiter
	readLimit  int64
	pingPeriod time.Duration
}

func NewController(hub *Hub, gate core.Gate, coord *app.Coordinator, readLimit int64, pingPeriod time.Duration) *Controller {
	return &Controller{
		Hub:        hub,
		Gate:       gate,
		Coord:      coord,
		limiter:    NewJoinRateLimiter(10, time.Minute),
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
	}
}

// HandleWS upgrades the request and starts the pumps. The subscriber id is
// the client token cookie set by the router middleware.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	sid := core.SubscriberID(c.GetString("client_token"))
	log.Info().Str("module", "ws.controller").Str("sid", string(sid)).Msg("new WS connection")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws.controller").Msg("ws upgrade")
		return
	}
	conn.SetReadLimit(ctl.readLimit)

	sub := newWSConn(conn)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()
		ctl.writePump(ctx, sub)
	}()
	go func() {
		defer cancel()
		ctl.readPump(ctx, sid, sub)
	}()
}

func (ctl *Controller) handleMessage(sid core.SubscriberID, c *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws.controller").Msg("bad json")
		ctl.sendJSON(c, errorFrame{Type: "error", Message: "bad_payload"})
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(sid, c, data)
	case "leave":
		ctl.handleLeave(sid, c)
	case "ping":
		ctl.sendJSON(c, envelope{Type: "pong"})
	default:
		log.Warn().Str("module", "ws.controller").Str("type", env.Type).Msg("unknown message")
	}
}

// handleJoin gates admission on explicit provisioning, then attaches the
// subscriber and resyncs it from the last-sequence cache.
func (ctl *Controller) handleJoin(sid core.SubscriberID, c *wsConn, data []byte) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws.controller").Msg("bad join payload")
		ctl.sendJSON(c, errorFrame{Type: "error", Message: "bad_payload"})
		return
	}
	roomID := domain.RoomID(strings.TrimSpace(p.ID))
	if roomID == "" {
		ctl.sendJSON(c, errorFrame{Type: "error", Message: "id is required"})
		return
	}
	if !ctl.limiter.Allow(sid) {
		ctl.sendJSON(c, errorFrame{Type: "error", Message: "too many join attempts"})
		return
	}
	if !ctl.Gate.IsJoinAllowed(roomID) {
		log.Info().Str("module", "ws.controller").Str("room", string(roomID)).Str("sid", string(sid)).Msg("join rejected, room not provisioned")
		ctl.sendJSON(c, errorFrame{Type: "error", Message: "room not found. Please createRoom first."})
		return
	}

	ctl.Hub.Attach(roomID, sid, c)
	ctl.sendJSON(c, joinedFrame{Type: "joined", RoomID: roomID})

	last := ctl.Coord.LastSequence(string(roomID))
	if last == nil {
		last = []domain.ActionToken{}
	}
	ctl.sendJSON(c, actionsFrame{
		Type:      "actions",
		RoomID:    roomID,
		Actions:   last,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (ctl *Controller) handleLeave(sid core.SubscriberID, c *wsConn) {
	ctl.Hub.Detach(sid)
	ctl.sendJSON(c, envelope{Type: "left"})
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws.controller").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
