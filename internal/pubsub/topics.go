package pubsub

import "strings"

const (
	TypeNotification = "notification"
	TypeMessage      = "message"
	TypeTrade        = "trade"
)

func NotificationsTopic(profileID string) string {
	return "profiles/" + profileID + "/notifications"
}

func TradeMessagesTopic(tradeID string) string {
	return "trades/" + tradeID + "/messages"
}

func TradeStatusTopic(tradeID string) string {
	return "trades/" + tradeID + "/status"
}

// ParseTopic splits a topic into its kind ("profiles" or "trades"), the ID
// and the channel. ok is false for anything not built by the helpers above.
func ParseTopic(topic string) (kind, id, channel string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] == "" {
		return "", "", "", false
	}

	switch {
	case parts[0] == "profiles" && parts[2] == "notifications":
	case parts[0] == "trades" && (parts[2] == "messages" || parts[2] == "status"):
	default:
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
