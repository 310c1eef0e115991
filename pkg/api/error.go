package api

import (
	"errors"
	"net/http"

	"github.com/bhanukaranwal/SetuBond/pkg/matching"
	"github.com/bhanukaranwal/SetuBond/pkg/oms"
)

var errMissingOrderID = errors.New("order id is required")

// statusOf maps OMS and engine errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, oms.ErrInvalidOrder),
		errors.Is(err, oms.ErrUnknownInstrument),
		errors.Is(err, matching.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, oms.ErrOrderIDNotFound),
		errors.Is(err, matching.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, oms.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, matching.ErrPersistence):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
