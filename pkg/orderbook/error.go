package orderbook

import "errors"

var (
	errLevelOrder    = errors.New("price levels out of order")
	errEntryOrder    = errors.New("entries out of time priority")
	errEntryPrice    = errors.New("entry price differs from its level")
	errEntryQuantity = errors.New("entry with non-positive remaining")
	errEmptyLevel    = errors.New("empty price level")
	errIndex         = errors.New("id index out of sync")
)
