package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"barter/internal/models"
	"barter/internal/trade"
)

type TradeService interface {
	Create(ctx context.Context, in trade.CreateInput, requesterID string) (*models.Trade, error)
	UpdateStatus(ctx context.Context, tradeID string, status models.TradeStatus, actorID string) (*models.Trade, error)
	ListTrades(ctx context.Context, profileID string, statuses []models.TradeStatus) ([]models.Trade, error)
	GetTrade(ctx context.Context, tradeID, profileID string) (*models.Trade, error)
	PostMessage(ctx context.Context, tradeID, senderID, content string) (*models.Message, error)
	ListMessages(ctx context.Context, tradeID, profileID string) ([]models.Message, error)
}

type TradeHandler struct {
	trades TradeService
}

func NewTradeHandler(trades TradeService) *TradeHandler {
	return &TradeHandler{trades: trades}
}

type createTradeRequest struct {
	OwnerItemID     string  `json:"ownerItemId" validate:"required"`
	RequesterItemID *string `json:"requesterItemId"`
	Message         string  `json:"message"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type postMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *TradeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTradeRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	t, err := h.trades.Create(r.Context(), trade.CreateInput{
		OwnerItemID:     req.OwnerItemID,
		RequesterItemID: req.RequesterItemID,
		Message:         req.Message,
	}, GetProfileID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t.View())
}

// List accepts repeated or comma-separated status query values.
func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []models.TradeStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := models.ParseTradeStatus(part)
			if err != nil {
				badRequest(w, "invalid status value")
				return
			}
			statuses = append(statuses, status)
		}
	}

	trades, err := h.trades.ListTrades(r.Context(), GetProfileID(r), statuses)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	views := make([]models.TradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, t.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *TradeHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.trades.GetTrade(r.Context(), chi.URLParam(r, "tradeID"), GetProfileID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t.View())
}

func (h *TradeHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	status, err := models.ParseTradeStatus(req.Status)
	if err != nil {
		badRequest(w, "invalid status value")
		return
	}
	h.setStatus(w, r, status)
}

// StatusAction serves the fixed-target routes such as /accept.
func (h *TradeHandler) StatusAction(status models.TradeStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.setStatus(w, r, status)
	}
}

func (h *TradeHandler) setStatus(w http.ResponseWriter, r *http.Request, status models.TradeStatus) {
	t, err := h.trades.UpdateStatus(r.Context(), chi.URLParam(r, "tradeID"), status, GetProfileID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t.View())
}

func (h *TradeHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.trades.ListMessages(r.Context(), chi.URLParam(r, "tradeID"), GetProfileID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *TradeHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	msg, err := h.trades.PostMessage(r.Context(), chi.URLParam(r, "tradeID"), GetProfileID(r), req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
