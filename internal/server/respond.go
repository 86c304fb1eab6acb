package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	aside "github.com/eugener/aside/internal"
)

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, aside.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, aside.ErrUpstreamFailure):
		return http.StatusBadGateway
	case errors.Is(err, aside.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, apiError{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
