package models

import (
	"fmt"
	"strings"
	"time"
)

type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeAccepted  TradeStatus = "ACCEPTED"
	TradeRejected  TradeStatus = "REJECTED"
	TradeCancelled TradeStatus = "CANCELLED"
	TradeCompleted TradeStatus = "COMPLETED"
)

// TradeStatuses lists every status. Keep in sync with the switches below.
var TradeStatuses = []TradeStatus{
	TradePending,
	TradeAccepted,
	TradeRejected,
	TradeCancelled,
	TradeCompleted,
}

func ParseTradeStatus(s string) (TradeStatus, error) {
	status := TradeStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown trade status %q", s)
	}
	return status, nil
}

func (s TradeStatus) Valid() bool {
	switch s {
	case TradePending, TradeAccepted, TradeRejected, TradeCancelled, TradeCompleted:
		return true
	}
	return false
}

func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeRejected, TradeCancelled, TradeCompleted:
		return true
	case TradePending, TradeAccepted:
		return false
	}
	return false
}

// Label is the human wording used in notifications.
func (s TradeStatus) Label() string {
	switch s {
	case TradePending:
		return "pending"
	case TradeAccepted:
		return "accepted"
	case TradeRejected:
		return "rejected"
	case TradeCancelled:
		return "cancelled"
	case TradeCompleted:
		return "completed"
	}
	return strings.ToLower(string(s))
}

// ReceiptEligible reports whether receipts may be produced for a trade in
// this status.
func (s TradeStatus) ReceiptEligible() bool {
	return s == TradeAccepted || s == TradeCompleted
}

type Item struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type Trade struct {
	ID              string      `json:"id"`
	OwnerID         string      `json:"ownerId"`
	RequesterID     string      `json:"requesterId"`
	OwnerItemID     string      `json:"ownerItemId"`
	OwnerItemTitle  string      `json:"ownerItemTitle,omitempty"`
	RequesterItemID *string     `json:"requesterItemId,omitempty"`
	Message         string      `json:"message,omitempty"`
	Status          TradeStatus `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func (t *Trade) IsParticipant(profileID string) bool {
	return profileID != "" && (t.OwnerID == profileID || t.RequesterID == profileID)
}

// Counterpart returns the other participant, or "" if profileID is not one.
func (t *Trade) Counterpart(profileID string) string {
	switch profileID {
	case t.OwnerID:
		return t.RequesterID
	case t.RequesterID:
		return t.OwnerID
	}
	return ""
}

type Message struct {
	ID        string    `json:"id"`
	TradeID   string    `json:"tradeId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// TradeView is the wire form of a trade.
type TradeView struct {
	Trade
	ReceiptEligible bool `json:"receiptEligible"`
}

func (t Trade) View() TradeView {
	return TradeView{Trade: t, ReceiptEligible: t.Status.ReceiptEligible()}
}
