package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/neuroexpert/site/internal/identity"
)

const wsWriteTimeout = 10 * time.Second

type wsError struct {
	Error string `json:"error"`
}

// HandleWebSocket handles GET /ws/chat. Each text frame carries a Request;
// the session identifier may instead come from the upgrade request. Every
// frame is answered with a Response or an error frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.maxBodyBytes)

	ctx := r.Context()
	defaultSession := identity.SessionIDFromContext(ctx)
	h.logger.Info("Chat WebSocket connected", "session_id", defaultSession, "ip", identity.ClientIPFromContext(ctx))

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				h.logger.Debug("Chat WebSocket closed", "session_id", defaultSession)
			} else {
				h.logger.Warn("Chat WebSocket read error", "error", err)
			}
			return
		}

		var req Request
		if typ != websocket.MessageText || json.Unmarshal(data, &req) != nil {
			if err := h.writeFrame(ctx, ws, wsError{Error: "invalid message"}); err != nil {
				return
			}
			continue
		}
		if req.SessionID == "" {
			req.SessionID = defaultSession
		}

		resp, err := h.svc.Reply(ctx, channelWS, req)
		var frame interface{} = resp
		if err != nil {
			frame = wsError{Error: "session_id and message are required"}
		}
		if err := h.writeFrame(ctx, ws, frame); err != nil {
			h.logger.Warn("Chat WebSocket write error", "error", err)
			return
		}
	}
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
