package server

import (
	"log/slog"
	"net/http"
)

// Static bodies and header values for the system endpoints.
var (
	okBody       = []byte("ok\n")
	notReadyBody = []byte("not ready\n")
	bannerBody   = []byte("aside cache gateway is running\n")
	plainCT      = []string{"text/plain; charset=utf-8"}
)

func writeText(w http.ResponseWriter, status int, body []byte) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(status)
	w.Write(body)
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, bannerBody)
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, okBody)
}

// handleReadyz reports 503 while the store is unreachable.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			slog.LogAttrs(r.Context(), slog.LevelWarn, "readiness check failed",
				slog.String("error", err.Error()),
			)
			writeText(w, http.StatusServiceUnavailable, notReadyBody)
			return
		}
	}
	writeText(w, http.StatusOK, okBody)
}
