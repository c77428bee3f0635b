package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"dubflow/internal/logs"
)

const (
	defaultLogLines = 50
	maxLogLines     = 1000
	maxLogWait      = 10 * time.Second
)

// handleLogs serves GET /api/logs?offset=&lines=&wait=&workflow=.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := logs.TailOptions{Offset: -1, Limit: defaultLogLines}

	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		offset, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		opts.Offset = offset
	}
	if raw := strings.TrimSpace(query.Get("lines")); raw != "" {
		lines, err := strconv.Atoi(raw)
		if err != nil || lines < 0 {
			s.writeError(w, http.StatusBadRequest, "lines must be a non-negative integer")
			return
		}
		opts.Limit = min(lines, maxLogLines)
	}
	if raw := strings.TrimSpace(query.Get("wait")); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait < 0 {
			s.writeError(w, http.StatusBadRequest, "wait must be a non-negative duration such as 5s")
			return
		}
		opts.Follow = wait > 0
		opts.Wait = min(wait, maxLogWait)
	}
	opts.Match = strings.TrimSpace(query.Get("workflow"))

	result, err := logs.Tail(r.Context(), s.cfg.LogPath(), opts)
	if err != nil && r.Context().Err() == nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result.Lines == nil {
		result.Lines = []string{}
	}
	writeJSON(w, http.StatusOK, LogTailResponse{Lines: result.Lines, Offset: result.Offset})
}
