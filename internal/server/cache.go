package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	aside "github.com/eugener/aside/internal"
)

// cacheWarningHeader flags a fresh value that could not be written back.
const cacheWarningHeader = "X-Cache-Warning"

var populationFailedValue = []string{"population_failed"}

// handleFetch serves GET /v1/cache/{key}: a miss is filled from the backing source.
func (s *server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.fetch(w, r, aside.FetchRequest{Mode: aside.ModeAutoResolve})
}

// handleStore serves POST /v1/cache/{key}: a miss is filled from the body.
func (s *server) handleStore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.deps.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, aside.KindInvalidRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, aside.KindInvalidRequest, "read request body: "+err.Error())
		return
	}
	s.fetch(w, r, aside.FetchRequest{Mode: aside.ModeCallerSupplied, Payload: body})
}

func (s *server) fetch(w http.ResponseWriter, r *http.Request, req aside.FetchRequest) {
	key, err := keyParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	ttl, err := s.ttlParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	req.Key, req.TTL = key, ttl

	res, err := s.deps.Engine.Fetch(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if res.Warning != nil {
		w.Header()[cacheWarningHeader] = populationFailedValue
	}
	writeJSON(w, http.StatusOK, res)
}

type invalidateResponse struct {
	Success bool           `json:"success"`
	Data    *invalidateKey `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
}

type invalidateKey struct {
	Key string `json:"key"`
}

// handleInvalidate serves DELETE /v1/cache/{key}.
func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := s.deps.Engine.Invalidate(r.Context(), key)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if res == aside.NotFound {
		writeJSON(w, http.StatusNotFound, invalidateResponse{Message: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, invalidateResponse{Success: true, Data: &invalidateKey{Key: key}})
}

// keyParam returns the unescaped key from the route wildcard.
func keyParam(r *http.Request) (string, error) {
	key := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		// chi matched against the escaped path.
		k, err := url.PathUnescape(key)
		if err != nil {
			return "", fmt.Errorf("%w: key: %v", aside.ErrInvalidRequest, err)
		}
		key = k
	}
	return key, nil
}

// ttlParam parses ?ttl, falling back to the configured default when absent.
func (s *server) ttlParam(r *http.Request) (aside.TTL, error) {
	q := r.URL.Query()
	if !q.Has("ttl") {
		return s.deps.DefaultTTL, nil
	}
	return aside.ParseTTL(q.Get("ttl"))
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	kind := aside.Kind(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", msg),
			slog.String("request_id", aside.RequestIDFromContext(r.Context())),
		)
		msg = "internal server error"
	}
	writeError(w, status, kind, msg)
}
