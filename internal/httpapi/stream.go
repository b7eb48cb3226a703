package httpapi

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/gramyfied/eloquence-orchestrator/pkg/transport"
)

// handleStream upgrades the session's control connection to a websocket
// and bridges it to the Pipeline that StartSession parked for this id,
// per §4.1. The handler blocks for the lifetime of the connection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p := s.takePipeline(id)
	if p == nil {
		writeError(w, http.StatusNotFound, "not_found", "no pending session for id")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		p.Close()
		return
	}

	var bridged transport.Pipeline = p
	if s.audioStore != nil {
		bridged = newRecordingPipeline(p, s.audioStore, s.sessionCfg.SampleRate)
	}

	wt := transport.NewWSTransport(conn)
	if err := transport.Serve(wt, bridged); err != nil {
		_ = wt.Close(int(websocket.StatusInternalError), "stream error")
		return
	}
	_ = wt.Close(int(websocket.StatusNormalClosure), "session ended")
}
