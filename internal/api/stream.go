package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/samplecentring-core/internal/camera"
)

// The multipart framing the UI's image element expects. Parts carry no
// leading boundary; each ends with one.
const (
	streamBoundary    = "!>"
	streamContentType = `multipart/x-mixed-replace; boundary="` + streamBoundary + `"`
	partHeader        = "Content-type: image/jpg\n\n"
	partTrailer       = "\n--" + streamBoundary
)

// handleCameraSubscribe starts acquisition and streams frames as a
// multipart response until the client goes away, the stream is closed by
// unsubscribe, or the camera stops delivering frames.
func (s *Server) handleCameraSubscribe(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.SubscribeCamera(r.Context())
	if err != nil {
		s.fail(w, r, "camera.subscribe", err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// The server write timeout would cut the stream.
	//nolint:errcheck // not supported by every writer; streaming still works
	rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", streamContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)

	s.metrics.streams.Inc()
	defer s.metrics.streams.Dec()

	for {
		frame, err := sub.Next(r.Context())
		if err != nil {
			s.logStreamEnd(r, "multipart", err)
			return
		}
		if err := writePart(w, frame.Data); err != nil {
			s.logStreamEnd(r, "multipart", err)
			return
		}
		if err := rc.Flush(); err != nil {
			s.logStreamEnd(r, "multipart", err)
			return
		}
	}
}

func writePart(w io.Writer, data []byte) error {
	if _, err := io.WriteString(w, partHeader); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, partTrailer)
	return err
}

// handleCameraUnsubscribe ends every open stream and stops acquisition.
// It always answers "True": the streams are gone even if the camera fails
// to stop, so a stop failure is only logged and counted.
func (s *Server) handleCameraUnsubscribe(w http.ResponseWriter, r *http.Request) {
	cmd := s.begin(r, "camera.unsubscribe", "", nil)
	closed, err := s.svc.UnsubscribeCamera(r.Context())
	cmd.params = map[string]any{"closed": closed}
	cmd.done(err)
	if err != nil {
		s.countFailure(r, cmd.action, err)
	}
	writeText(w, bodyTrue)
}

// handleCameraWebSocket sends each frame as one binary WebSocket message.
// Like the multipart stream it ends on unsubscribe.
func (s *Server) handleCameraWebSocket(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.SubscribeCamera(r.Context())
	if err != nil {
		s.fail(w, r, "camera.subscribe", err)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("camera websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.metrics.streams.Inc()
	defer s.metrics.streams.Dec()

	// Reads only detect the client going away.
	go func() {
		defer sub.Close()
		conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	for {
		frame, err := sub.Next(r.Context())
		if err != nil {
			s.logStreamEnd(r, "websocket", err)
			//nolint:errcheck // Best-effort close message
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
		//nolint:errcheck // Best-effort deadline; write error caught below
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
			s.logStreamEnd(r, "websocket", err)
			return
		}
	}
}

func (s *Server) logStreamEnd(r *http.Request, kind string, err error) {
	switch {
	case errors.Is(err, camera.ErrFrameTimeout):
		s.logger.Warn("camera stream ended: no frames", "stream", kind, "request_id", requestID(r))
	case errors.Is(err, camera.ErrClosed), r.Context().Err() != nil:
		s.logger.Debug("camera stream closed", "stream", kind, "request_id", requestID(r))
	default:
		s.logger.Debug("camera stream write failed", "stream", kind, "error", err, "request_id", requestID(r))
	}
}
