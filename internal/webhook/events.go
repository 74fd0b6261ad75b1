package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/momentcast/internal/broadcast"
	"github.com/user/momentcast/internal/types"
)

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w http.ResponseWriter, f http.Flusher, name, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	f.Flush()
	return nil
}

// handleEvents streams finalized moments. A client first gets a snapshot
// of recent moments, then live events. Delivery is at-most-once: a slow
// client misses events and should reconcile from the snapshot on
// reconnect. ?session= filters both parts.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event hub not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	session := types.SessionID(r.URL.Query().Get("session"))

	// Subscribe before reading the snapshot so nothing falls in between.
	sub := s.deps.Hub.Subscribe(64)
	defer sub.Unsubscribe()

	ctx := r.Context()
	var snapshot []*types.Moment
	var err error
	if session != "" {
		snapshot, err = s.deps.Moments.ListBySession(ctx, session, s.SnapshotSize)
	} else {
		snapshot, err = s.deps.Moments.ListRecent(ctx, s.SnapshotSize)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	events := make([]types.MomentEvent, 0, len(snapshot))
	seen := make(map[types.MomentID]bool, len(snapshot))
	for _, m := range snapshot {
		events = append(events, types.NewMomentEvent(m))
		seen[m.ID] = true
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := writeEvent(w, flusher, "snapshot", "", events); err != nil {
		return
	}

	keepAlive := s.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if !broadcast.Matches(ev, session) || seen[ev.MomentID] {
				continue
			}
			if err := writeEvent(w, flusher, "moment", string(ev.MomentID), ev); err != nil {
				slog.Debug("event stream closed", "error", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
