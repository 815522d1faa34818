package models

import "time"

type NotificationType string

const (
	NotificationMessage NotificationType = "MESSAGE"
	NotificationTrade   NotificationType = "TRADE"
)

type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"-"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Body        string           `json:"message"`
	Read        bool             `json:"read"`
	TradeID     *string          `json:"tradeId,omitempty"`
	MessageID   *string          `json:"messageId,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}
