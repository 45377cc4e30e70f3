package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/samplecentring-core/internal/audit"
	"github.com/nerrad567/samplecentring-core/internal/centring"
)

// command is one hardware command in flight. done journals, counts and
// logs it once the outcome is known.
type command struct {
	s      *Server
	r      *http.Request
	action string
	target string
	params map[string]any
	start  time.Time
}

func (s *Server) begin(r *http.Request, action, target string, params map[string]any) *command {
	return &command{
		s:      s,
		r:      r,
		action: action,
		target: target,
		params: params,
		start:  time.Now(),
	}
}

// done records the outcome of the command.
func (c *command) done(err error) {
	c.s.metrics.observeCommand(c.action, err == nil)

	if c.s.journal == nil {
		return
	}
	e := &audit.Entry{
		Action:     c.action,
		Target:     c.target,
		Params:     c.params,
		Outcome:    audit.OutcomeOK,
		RequestID:  requestID(c.r),
		DurationMS: time.Since(c.start).Milliseconds(),
	}
	if err != nil {
		e.Outcome = audit.OutcomeFailed
		e.ErrorKind = centring.ErrorKind(err)
	}
	c.s.journal.Record(e)
}

// handleListJournal returns paginated journal entries, most recent first.
//
// Query parameters:
//   - action: filter by command (motor.move, centring.save, ...)
//   - target: filter by motor role or position name
//   - outcome: ok or failed
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	repo := s.journal.Repository()
	if repo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command journal not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Target:  q.Get("target"),
		Outcome: q.Get("outcome"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := repo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list journal entries", "error", err)
		writeInternalError(w, "failed to list journal entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
