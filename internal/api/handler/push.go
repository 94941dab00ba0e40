package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/albapepper/scoracle-live/internal/broadcast"
	"github.com/albapepper/scoracle-live/internal/engine"
	"github.com/albapepper/scoracle-live/internal/match"
)

// Control frames sent only to the requesting connection.
const (
	frameJoined match.EventType = "joined"
	frameLeft   match.EventType = "left"
	framePong   match.EventType = "pong"
	frameError  match.EventType = "error"
)

const maxClientFrame = 4096

// clientFrame is what viewers send on the push channel.
type clientFrame struct {
	Type      string `json:"type"`
	FixtureID string `json:"fixtureId"`
	Team      string `json:"team,omitempty"`
	Count     int    `json:"count,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsWriter adapts a websocket connection to broadcast.Writer. Only the
// outbox goroutine calls it, which satisfies gorilla's one-writer rule.
type wsWriter struct {
	conn *websocket.Conn
}

func (w wsWriter) WriteFrame(data []byte, deadline time.Time) error {
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.WSAllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.WSAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// pushConn is one viewer connection.
type pushConn struct {
	id     string
	actor  match.Actor
	conn   *websocket.Conn
	out    *broadcast.Outbox
	cheers *rate.Limiter
}

// ServeWS upgrades the request and serves the push channel until the viewer
// goes away. Broadcasts and control replies share the connection's outbox,
// so a viewer sees them in the order they were produced.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	pc := &pushConn{
		id:     uuid.NewString(),
		actor:  actorFrom(r),
		conn:   conn,
		cheers: rate.NewLimiter(rate.Limit(h.cfg.WSCheersPerSec), max(1, int(h.cfg.WSCheersPerSec))),
	}
	if pc.actor.Role == "" {
		pc.actor.Role = match.RoleViewer
	}
	if pc.actor.ID == "" {
		pc.actor.ID = pc.id
	}
	pc.out = broadcast.NewOutbox(pc.id, h.cfg.WSOutboxSize, wsWriter{conn: conn}, h.cfg.WSWriteTimeout, h.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		h.registry.Disconnect(pc.id)
		pc.out.Close()
		cancel()
		conn.Close()
		h.logger.Debug("Viewer disconnected", "conn_id", pc.id, "dropped", pc.out.Dropped())
	}()

	go func() {
		// A failed write ends the read loop below through the closed socket.
		if err := pc.out.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			conn.Close()
		}
	}()
	go h.keepalive(ctx, pc)

	h.logger.Debug("Viewer connected", "conn_id", pc.id, "role", pc.actor.Role)
	h.readLoop(ctx, pc)
}

// keepalive pings the viewer. WriteControl may run alongside the outbox writer.
func (h *Handler) keepalive(ctx context.Context, pc *pushConn) {
	interval := h.cfg.WSPingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pc.out.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WSWriteTimeout)
			if err := pc.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				pc.conn.Close()
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, pc *pushConn) {
	pc.conn.SetReadLimit(maxClientFrame)
	readWait := 2 * h.cfg.WSPingInterval
	if readWait > 0 {
		pc.conn.SetReadDeadline(time.Now().Add(readWait))
		pc.conn.SetPongHandler(func(string) error {
			return pc.conn.SetReadDeadline(time.Now().Add(readWait))
		})
	}

	for {
		_, raw, err := pc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read failed", "conn_id", pc.id, "error", err)
			}
			return
		}
		if readWait > 0 {
			pc.conn.SetReadDeadline(time.Now().Add(readWait))
		}

		var f clientFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			h.reply(pc, frameError, "", errorPayload{Code: "BAD_REQUEST", Message: "frame must be valid JSON"})
			continue
		}
		h.handleFrame(ctx, pc, f)
	}
}

func (h *Handler) handleFrame(ctx context.Context, pc *pushConn, f clientFrame) {
	switch f.Type {
	case "join":
		if f.FixtureID == "" {
			h.reply(pc, frameError, "", errorPayload{Code: string(match.KindValidationFailed), Message: "fixtureId is required"})
			return
		}
		// The ack is queued before the join so it precedes the audience update.
		h.reply(pc, frameJoined, f.FixtureID, nil)
		h.registry.Join(pc.out, f.FixtureID)

	case "leave":
		fixtureID, _ := h.registry.Leave(pc.id)
		h.reply(pc, frameLeft, fixtureID, nil)

	case "cheer":
		fixtureID := f.FixtureID
		if fixtureID == "" {
			fixtureID, _ = h.registry.FixtureOf(pc.id)
		}
		if fixtureID == "" {
			h.reply(pc, frameError, "", errorPayload{Code: string(match.KindValidationFailed), Message: "join a fixture before cheering"})
			return
		}
		if !pc.cheers.Allow() {
			h.reply(pc, frameError, fixtureID, errorPayload{Code: "RATE_LIMITED", Message: "too many cheers"})
			return
		}
		_, err := h.engine.UpdateCheer(ctx, pc.actor, fixtureID, engine.CheerInput{
			Team:  match.Side(f.Team),
			Count: f.Count,
		})
		if err != nil {
			h.reply(pc, frameError, fixtureID, errorPayload{Code: string(match.KindOf(err)), Message: publicMessage(err)})
		}

	case "ping":
		h.reply(pc, framePong, f.FixtureID, nil)

	default:
		h.reply(pc, frameError, f.FixtureID, errorPayload{Code: "BAD_REQUEST", Message: "unknown frame type " + f.Type})
	}
}

// reply queues a control frame for this connection only.
func (h *Handler) reply(pc *pushConn, t match.EventType, fixtureID string, payload any) {
	data, err := broadcast.Encode(broadcast.Message{
		Type:      t,
		FixtureID: fixtureID,
		Payload:   payload,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Failed to encode control frame", "conn_id", pc.id, "event", t, "error", err)
		return
	}
	if err := pc.out.Send(data); err != nil {
		h.logger.Debug("Control frame dropped", "conn_id", pc.id, "event", t, "error", err)
	}
}

func publicMessage(err error) string {
	var me *match.Error
	if errors.As(err, &me) && me.Kind != match.KindInternal {
		return me.Message
	}
	return "internal error"
}
