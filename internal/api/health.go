package api

import (
	"context"
	"net/http"
	"time"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type ConnectionCounter interface {
	ClientCount() int
}

type HealthHandler struct {
	database Pinger
	gateway  *RateLimitGateway
	hub      ConnectionCounter
}

func NewHealthHandler(database Pinger, gateway *RateLimitGateway, hub ConnectionCounter) *HealthHandler {
	return &HealthHandler{database: database, gateway: gateway, hub: hub}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.database.PingContext(ctx); err != nil {
		dbStatus = "error"
		status = http.StatusServiceUnavailable
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}

	body := map[string]any{
		"status": result,
		"checks": map[string]string{
			"database": dbStatus,
		},
	}
	if h.gateway != nil {
		body["rateLimit"] = h.gateway.Stats()
	}
	if h.hub != nil {
		body["websocketClients"] = h.hub.ClientCount()
	}

	writeJSON(w, status, body)
}
