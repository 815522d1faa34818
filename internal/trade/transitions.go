package trade

import "barter/internal/models"

// transitions lists, per status, the statuses it may move to. Statuses with
// no entry are terminal.
var transitions = map[models.TradeStatus][]models.TradeStatus{
	models.TradePending:  {models.TradeAccepted, models.TradeRejected, models.TradeCancelled},
	models.TradeAccepted: {models.TradeCancelled, models.TradeCompleted},
}

func CanTransition(from, to models.TradeStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
