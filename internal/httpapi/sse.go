package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Sakimotor/TranslationFramework2/internal/jobs"
)

// handleRunStream pushes the recent rebuild history as server-sent events.
// A "runs" event is emitted whenever the history changes; in between the
// connection is kept open with comment lines.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var last []byte
	poll := func() error {
		runs, err := s.svc.History(r.Context(), defaultRunLimit)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(runs)
		if err != nil {
			return err
		}
		if last != nil && bytes.Equal(payload, last) {
			_, err = fmt.Fprint(w, ": idle\n\n")
		} else {
			last = payload
			_, err = fmt.Fprintf(w, "id: %s\nevent: runs\ndata: %s\n\n", latestRunID(runs), payload)
		}
		if err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := poll(); err != nil {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := poll(); err != nil {
				return
			}
		}
	}
}

func latestRunID(runs []*jobs.RebuildRun) string {
	if len(runs) == 0 {
		return ""
	}
	return runs[0].ID
}
