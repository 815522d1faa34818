package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"barter/internal/auth"
	"barter/internal/config"
	"barter/internal/ws"
)

type WebSocketHandler struct {
	hub            *ws.Hub
	tokens         AccessTokenValidator
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, tokens AccessTokenValidator, cfg config.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:            hub,
		tokens:         tokens,
		allowedOrigins: cfg.AllowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeWS authenticates with the access token from the query string before
// upgrading, since browsers cannot set headers on the handshake.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		unauthorized(w, "Missing token")
		return
	}

	claims, err := h.tokens.Validate(token, auth.TokenAccess)
	if err != nil {
		unauthorized(w, "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "component", "api", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.Subject, claims.ProfileID)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	client.SendHello()

	go client.WritePump()
	go client.ReadPump()
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if isLoopbackOrigin(origin) {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if originMatchesAllowed(origin, allowed) {
			return true
		}
	}
	slog.Warn("websocket origin rejected", "component", "api", "origin", origin)
	return false
}

// originMatchesAllowed supports exact origins and a trailing "*" prefix match.
func originMatchesAllowed(origin, allowed string) bool {
	if prefix, ok := strings.CutSuffix(allowed, "*"); ok {
		return strings.HasPrefix(origin, prefix)
	}
	return origin == allowed
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
