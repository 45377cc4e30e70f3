package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/samplecentring-core/internal/centring"
	"github.com/nerrad567/samplecentring-core/internal/diffractometer"
)

// Registry events broadcast on the events hub, alongside hardware events.
const (
	EventPositionSaved   = "centring.saved"
	EventPositionDeleted = "centring.deleted"
	EventPositionRenamed = "centring.renamed"
)

// reply finishes cmd and answers "True", or "False" on error.
func (s *Server) reply(w http.ResponseWriter, cmd *command, err error) {
	cmd.done(err)
	if err != nil {
		s.fail(w, cmd.r, cmd.action, err)
		return
	}
	writeText(w, bodyTrue)
}

// --- Motors ---

// handleMoveMotor moves one moveable: PUT /{id}/move?newpos=...
func (s *Server) handleMoveMotor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	newpos := r.URL.Query().Get("newpos")

	cmd := s.begin(r, "motor.move", id, map[string]any{"newpos": newpos})
	s.reply(w, cmd, s.svc.Move(r.Context(), id, newpos))
}

// handleStatus returns the status of the motors shown in the UI.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context())
	if err != nil {
		s.fail(w, r, "motor.status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleMotorStatus returns the status of one moveable.
func (s *Server) handleMotorStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.MotorStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "motor.status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- Centring ---

// handleListPositions returns the saved centred positions in registry order.
func (s *Server) handleListPositions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Positions().List())
}

// handleListClicks returns the buffered clicks, oldest first.
func (s *Server) handleListClicks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Clicks())
}

// handleGetCentring is kept for UI compatibility and always answers "True".
func (s *Server) handleGetCentring(w http.ResponseWriter, _ *http.Request) {
	writeText(w, bodyTrue)
}

// handlePostClick buffers a click from the form fields PosX and PosY.
func (s *Server) handlePostClick(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, "centring.click", fmt.Errorf("%w: %w", diffractometer.ErrMalformedInput, err))
		return
	}
	c, err := parseClick(r.PostFormValue("PosX"), r.PostFormValue("PosY"))
	if err != nil {
		s.fail(w, r, "centring.click", err)
		return
	}
	s.svc.AddClick(c)
	writeText(w, bodyTrue)
}

func parseClick(xs, ys string) (centring.Click, error) {
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return centring.Click{}, fmt.Errorf("%w: PosX %q", diffractometer.ErrMalformedInput, xs)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return centring.Click{}, fmt.Errorf("%w: PosY %q", diffractometer.ErrMalformedInput, ys)
	}
	return centring.Click{X: x, Y: y}, nil
}

// handleImageClick forwards a click to the running centring procedure:
// PUT /centring/click?clickPos={"x":..,"y":..}
func (s *Server) handleImageClick(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("clickPos")
	cmd := s.begin(r, "centring.click", "", map[string]any{"clickPos": raw})

	var c centring.Click
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		s.reply(w, cmd, fmt.Errorf("%w: clickPos: %w", diffractometer.ErrMalformedInput, err))
		return
	}
	s.reply(w, cmd, s.svc.ImageClicked(r.Context(), c))
}

func (s *Server) handleStartAuto(w http.ResponseWriter, r *http.Request) {
	cmd := s.begin(r, "centring.auto", "", nil)
	_, err := s.svc.StartAutoCentring(r.Context())
	s.reply(w, cmd, err)
}

func (s *Server) handleStart3Click(w http.ResponseWriter, r *http.Request) {
	cmd := s.begin(r, "centring.start3click", "", nil)
	s.reply(w, cmd, s.svc.Start3ClickCentring(r.Context()))
}

// --- Saved positions ---

// handleSavePosition stores the current motor positions and answers with
// the generated name. The path id is ignored.
func (s *Server) handleSavePosition(w http.ResponseWriter, r *http.Request) {
	cmd := s.begin(r, "centring.save", "", nil)
	name, err := s.svc.Save(r.Context())
	cmd.target = name
	cmd.done(err)
	if err != nil {
		s.fail(w, r, cmd.action, err)
		return
	}
	s.hub.Broadcast(EventPositionSaved, map[string]string{"name": name})
	writeText(w, name)
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	cmd := s.begin(r, "centring.delete", name, nil)
	removed := s.svc.Delete(name)
	cmd.params = map[string]any{"removed": removed}
	if removed > 0 {
		s.hub.Broadcast(EventPositionDeleted, map[string]any{"name": name, "removed": removed})
	}
	s.reply(w, cmd, nil)
}

// handleRenamePosition renames: PUT /centring/{id}/rename?newname=...
func (s *Server) handleRenamePosition(w http.ResponseWriter, r *http.Request) {
	oldName := chi.URLParam(r, "id")
	newName := r.URL.Query().Get("newname")
	cmd := s.begin(r, "centring.rename", oldName, map[string]any{"newname": newName})

	if renamed := s.svc.Rename(oldName, newName); renamed > 0 {
		s.hub.Broadcast(EventPositionRenamed, map[string]any{"name": oldName, "newname": newName})
	}
	s.reply(w, cmd, nil)
}

// handleMoveToPosition moves the rig to the saved position named in the path.
func (s *Server) handleMoveToPosition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	cmd := s.begin(r, "centring.move", name, nil)
	s.reply(w, cmd, s.svc.MoveTo(r.Context(), name))
}

// --- Camera ---

// handleSnapshot writes the current camera image into the snapshot
// directory.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	cmd := s.begin(r, "camera.snapshot", "", nil)
	path, err := s.svc.TakeSnapshot(r.Context())
	cmd.target = path
	s.reply(w, cmd, err)
}
