package oms

import "errors"

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrDuplicateOrder    = errors.New("duplicate client order id")
	ErrOrderIDNotFound   = errors.New("order not found")
	errNoMatcher         = errors.New("oms has no matcher")
)
