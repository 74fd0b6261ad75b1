// internal/webhook/server.go
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/momentcast/internal/broadcast"
	"github.com/user/momentcast/internal/gateway"
	"github.com/user/momentcast/internal/moments"
	"github.com/user/momentcast/internal/objectstore"
	"github.com/user/momentcast/internal/state"
	"github.com/user/momentcast/internal/types"
)

// SessionService is the write side of sessions; *gateway.Gateway
// satisfies it.
type SessionService interface {
	CreateSession(ctx context.Context, sourceURL string) (*types.SessionRecord, error)
	Ingest(ctx context.Context, id types.SessionID, text string) (types.Decision, error)
	Finalize(ctx context.Context, id types.SessionID) (*types.Moment, error)
	Close(ctx context.Context, id types.SessionID) (*types.Moment, error)
}

// LiveView exposes in-memory session state.
type LiveView interface {
	Snapshot(id types.SessionID) (moments.SessionView, bool)
}

// Deps wires the server. Live, Decisions, Media and Hub are optional; the
// routes that need a missing one answer 503.
type Deps struct {
	Sessions  SessionService
	Index     types.SessionStore
	Live      LiveView
	Decisions types.DecisionLog
	Moments   types.MomentStore
	Media     types.MediaStore
	Hub       *broadcast.Hub
}

// Server is the HTTP API of the daemon.
type Server struct {
	deps Deps
	mux  *http.ServeMux

	// SnapshotSize is how many recent moments a new event stream gets
	// before live events.
	SnapshotSize int
	// KeepAlive is the interval of SSE comment pings.
	KeepAlive time.Duration
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:         deps,
		mux:          http.NewServeMux(),
		SnapshotSize: 20,
		KeepAlive:    15 * time.Second,
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/paragraphs", s.handleIngest)
	s.mux.HandleFunc("POST /api/sessions/{id}/finalize", s.handleFinalize)
	s.mux.HandleFunc("GET /api/sessions/{id}/decisions", s.handleDecisions)
	s.mux.HandleFunc("GET /api/moments", s.handleListMoments)
	s.mux.HandleFunc("GET /api/moments/{id}", s.handleGetMoment)
	s.mux.HandleFunc("PUT /api/moments/{id}/posts", s.handleUpdatePosts)
	s.mux.HandleFunc("POST /api/moments/{id}/publish/{platform}", s.handlePublish)
	s.mux.HandleFunc("DELETE /api/moments/{id}/publish/{platform}", s.handleUnpublish)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /media/{key...}", s.handleMedia)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrSessionNotFound),
		errors.Is(err, state.ErrSessionNotFound),
		errors.Is(err, state.ErrMomentNotFound),
		errors.Is(err, state.ErrMediaNotFound),
		errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrAlreadyPublished):
		return http.StatusConflict
	case errors.Is(err, moments.ErrEmptyParagraph):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrLaneFull):
		return http.StatusTooManyRequests
	case errors.Is(err, gateway.ErrQueueStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func queryLimit(r *http.Request, def int) int {
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	SourceURL string `json:"source_url"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	rec, err := s.deps.Sessions.CreateSession(r.Context(), strings.TrimSpace(req.SourceURL))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Index.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if records == nil {
		records = []*types.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

type sessionResponse struct {
	*types.SessionRecord
	Live *moments.SessionView `json:"live,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := types.SessionID(r.PathValue("id"))
	rec, err := s.deps.Index.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := sessionResponse{SessionRecord: rec}
	if s.deps.Live != nil {
		if v, ok := s.deps.Live.Snapshot(id); ok {
			resp.Live = &v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type momentResponse struct {
	Moment *types.Moment `json:"moment"`
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Sessions.Close(r.Context(), types.SessionID(r.PathValue("id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, momentResponse{Moment: m})
}

type ingestRequest struct {
	Text string `json:"text"`
}

type ingestResponse struct {
	Decision types.Decision `json:"decision"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	d, err := s.deps.Sessions.Ingest(r.Context(), types.SessionID(r.PathValue("id")), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Decision: d})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Sessions.Finalize(r.Context(), types.SessionID(r.PathValue("id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, momentResponse{Moment: m})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Decisions == nil {
		writeError(w, http.StatusServiceUnavailable, "decision log not configured")
		return
	}
	id := types.SessionID(r.PathValue("id"))
	if _, err := s.deps.Index.Get(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	recs, err := s.deps.Decisions.Tail(r.Context(), id, queryLimit(r, 200))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []*types.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleListMoments(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	var (
		list []*types.Moment
		err  error
	)
	if session := r.URL.Query().Get("session"); session != "" {
		list, err = s.deps.Moments.ListBySession(r.Context(), types.SessionID(session), limit)
	} else {
		list, err = s.deps.Moments.ListRecent(r.Context(), limit)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*types.Moment{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getMoment(ctx context.Context, id types.MomentID) (*types.Moment, error) {
	found, err := s.deps.Moments.GetByIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", state.ErrMomentNotFound, id)
	}
	return found[0], nil
}

func (s *Server) handleGetMoment(w http.ResponseWriter, r *http.Request) {
	m, err := s.getMoment(r.Context(), types.MomentID(r.PathValue("id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdatePosts(w http.ResponseWriter, r *http.Request) {
	var posts types.Posts
	if err := json.NewDecoder(r.Body).Decode(&posts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	m, err := s.deps.Moments.UpdatePosts(r.Context(), types.MomentID(r.PathValue("id")), posts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type publishRequest struct {
	RemoteID string `json:"remote_id"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	m, err := s.deps.Moments.MarkPublished(r.Context(), types.MomentID(r.PathValue("id")), r.PathValue("platform"), req.RemoteID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Moments.ClearPublished(r.Context(), types.MomentID(r.PathValue("id")), r.PathValue("platform"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.deps.Media == nil {
		writeError(w, http.StatusServiceUnavailable, "media store not configured")
		return
	}
	data, meta, err := s.deps.Media.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if meta != nil && meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
