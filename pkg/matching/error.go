package matching

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder  = errors.New("invalid order")
	ErrPersistence   = errors.New("persistence failure")
	ErrOrderNotFound = errors.New("order not found")
)

const (
	reasonNoLiquidity   = "no liquidity"
	reasonFillOrKill    = "fill-or-kill not satisfiable"
	reasonNoImmediate   = "no immediate match"
	reasonAlreadyClosed = "order already %s"
)

func wrapPersistence(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
