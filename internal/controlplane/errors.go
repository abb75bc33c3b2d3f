package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/aiorg/internal/graph"
	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/scheduler"
	"github.com/fentz26/aiorg/internal/store"
)

// ErrInvalidRequest marks malformed client input.
var ErrInvalidRequest = errors.New("invalid request")

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, scheduler.ErrUnknownAgent):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, graph.ErrProjectExists),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrTerminal),
		errors.Is(err, models.ErrTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, graph.ErrInvalidProject),
		errors.Is(err, graph.ErrUnknownAgent),
		errors.Is(err, graph.ErrCycle),
		errors.Is(err, graph.ErrUnknownStep),
		errors.Is(err, graph.ErrDuplicateStep):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
