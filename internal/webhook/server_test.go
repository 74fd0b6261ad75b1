package webhook

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/momentcast/internal/broadcast"
	"github.com/user/momentcast/internal/gateway"
	"github.com/user/momentcast/internal/moments"
	"github.com/user/momentcast/internal/state"
	"github.com/user/momentcast/internal/types"
)

// fakeSessions records calls and answers from canned values.
type fakeSessions struct {
	index    *state.SessionStore
	decision types.Decision
	moment   *types.Moment
	err      error
	lastText string
}

func (f *fakeSessions) CreateSession(ctx context.Context, sourceURL string) (*types.SessionRecord, error) {
	return f.index.Create(ctx, types.NewSessionID(), sourceURL)
}

func (f *fakeSessions) Ingest(_ context.Context, id types.SessionID, text string) (types.Decision, error) {
	f.lastText = text
	if f.err != nil {
		return types.Decision{}, f.err
	}
	return f.decision, nil
}

func (f *fakeSessions) Finalize(context.Context, types.SessionID) (*types.Moment, error) {
	return f.moment, f.err
}

func (f *fakeSessions) Close(context.Context, types.SessionID) (*types.Moment, error) {
	return f.moment, f.err
}

type fakeLive map[types.SessionID]moments.SessionView

func (f fakeLive) Snapshot(id types.SessionID) (moments.SessionView, bool) {
	v, ok := f[id]
	return v, ok
}

type testEnv struct {
	srv       *Server
	sessions  *fakeSessions
	index     *state.SessionStore
	decisions *state.DecisionLog
	store     *state.MomentStore
	media     *state.MediaStore
	hub       *broadcast.Hub
	live      fakeLive
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := state.OpenMomentStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		index:     state.NewSessionStore(dir),
		decisions: state.NewDecisionLog(dir),
		store:     store,
		media:     state.NewMediaStore(dir),
		hub:       broadcast.NewHub(),
		live:      fakeLive{},
	}
	env.sessions = &fakeSessions{index: env.index}
	env.srv = NewServer(Deps{
		Sessions:  env.sessions,
		Index:     env.index,
		Live:      env.live,
		Decisions: env.decisions,
		Moments:   store,
		Media:     env.media,
		Hub:       env.hub,
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (env *testEnv) saveMoment(t *testing.T, session types.SessionID, title string) *types.Moment {
	t.Helper()
	m, err := env.store.Save(context.Background(), session, title, "text of "+title,
		types.Posts{Twitter: []string{"t"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decode[map[string]string](t, w); resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestCreateAndGetSession(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/sessions", `{"source_url":"rtmp://live/x"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	rec := decode[types.SessionRecord](t, w)
	if rec.SourceURL != "rtmp://live/x" {
		t.Errorf("source_url = %q", rec.SourceURL)
	}

	env.live[rec.SessionID] = moments.SessionView{SessionID: rec.SessionID, ActiveTitle: "Keynote"}
	w = env.do(t, http.MethodGet, "/api/sessions/"+string(rec.SessionID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[map[string]any](t, w)
	live, ok := got["live"].(map[string]any)
	if !ok || live["active_title"] != "Keynote" {
		t.Errorf("live view = %v", got["live"])
	}

	w = env.do(t, http.MethodGet, "/api/sessions", "")
	if list := decode[[]types.SessionRecord](t, w); len(list) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateSessionEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/sessions/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestIngestParagraph(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.decision = types.Decision{IsHotMoment: true, Title: "Launch"}

	w := env.do(t, http.MethodPost, "/api/sessions/s1/paragraphs", `{"text":"we are launching"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Decision struct {
			IsHotMoment  bool    `json:"isHotMoment"`
			Title        *string `json:"title"`
			Continuation bool    `json:"continuation"`
		} `json:"decision"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Decision.IsHotMoment || resp.Decision.Title == nil || *resp.Decision.Title != "Launch" {
		t.Errorf("decision = %+v", resp.Decision)
	}
	if env.sessions.lastText != "we are launching" {
		t.Errorf("text = %q", env.sessions.lastText)
	}
}

func TestIngestValidation(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{`not json`, `{"text":"   "}`} {
		if w := env.do(t, http.MethodPost, "/api/sessions/s1/paragraphs", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, w.Code)
		}
	}
}

func TestIngestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", gateway.ErrSessionNotFound), http.StatusNotFound},
		{moments.ErrEmptyParagraph, http.StatusBadRequest},
		{gateway.ErrQueueStopped, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: s1", gateway.ErrLaneFull), http.StatusTooManyRequests},
		{fmt.Errorf("save moment: %w", context.DeadlineExceeded), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		env := newTestEnv(t)
		env.sessions.err = tt.err
		w := env.do(t, http.MethodPost, "/api/sessions/s1/paragraphs", `{"text":"x"}`)
		if w.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestFinalizeAndClose(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/sessions/s1/finalize", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"moment":null`) {
		t.Errorf("empty finalize = %d %s", w.Code, w.Body)
	}

	env.sessions.moment = &types.Moment{ID: "m1", Title: "Launch"}
	w = env.do(t, http.MethodDelete, "/api/sessions/s1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"Launch"`) {
		t.Errorf("body = %s", w.Body)
	}
}

func TestDecisionsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec, _ := env.index.Create(ctx, types.NewSessionID(), "")
	for i := range 3 {
		env.decisions.Append(ctx, &types.DecisionRecord{SessionID: rec.SessionID, Paragraph: fmt.Sprintf("p%d", i)})
	}

	w := env.do(t, http.MethodGet, "/api/sessions/"+string(rec.SessionID)+"/decisions?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[[]types.DecisionRecord](t, w)
	if len(got) != 2 || got[1].Paragraph != "p2" {
		t.Errorf("decisions = %+v", got)
	}

	if w := env.do(t, http.MethodGet, "/api/sessions/missing/decisions", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d", w.Code)
	}
}

func TestMomentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	a := types.NewSessionID()
	b := types.NewSessionID()
	m1 := env.saveMoment(t, a, "First")
	env.saveMoment(t, b, "Second")

	w := env.do(t, http.MethodGet, "/api/moments", "")
	if list := decode[[]types.Moment](t, w); len(list) != 2 {
		t.Errorf("recent = %d", len(list))
	}
	w = env.do(t, http.MethodGet, "/api/moments?session="+string(a), "")
	if list := decode[[]types.Moment](t, w); len(list) != 1 || list[0].ID != m1.ID {
		t.Errorf("by session = %+v", list)
	}

	w = env.do(t, http.MethodGet, "/api/moments/"+string(m1.ID), "")
	if w.Code != http.StatusOK || decode[types.Moment](t, w).Title != "First" {
		t.Errorf("get = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/moments/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing moment status = %d", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/moments/"+string(m1.ID)+"/posts",
		`{"twitter":["new"],"facebook":"fb","linkedin":"li","article":"<p>a</p>"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update posts = %d %s", w.Code, w.Body)
	}
	if got := decode[types.Moment](t, w); got.Posts.Facebook != "fb" || got.Posts.Twitter[0] != "new" {
		t.Errorf("posts = %+v", got.Posts)
	}
}

func TestPublishLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := env.saveMoment(t, types.NewSessionID(), "Launch")
	path := "/api/moments/" + string(m.ID) + "/publish/twitter"

	w := env.do(t, http.MethodPost, path, `{"remote_id":"tw-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("publish = %d %s", w.Code, w.Body)
	}
	if got := decode[types.Moment](t, w); got.PublishedTo["twitter"].RemoteID != "tw-1" {
		t.Errorf("published_to = %+v", got.PublishedTo)
	}
	if w := env.do(t, http.MethodPost, path, ""); w.Code != http.StatusConflict {
		t.Errorf("second publish = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, ""); w.Code != http.StatusOK {
		t.Errorf("unpublish = %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, path, ""); w.Code != http.StatusOK {
		t.Errorf("publish after clear = %d", w.Code)
	}
}

func TestMediaEndpoint(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.media.Put(context.Background(), "s1/c1-still.jpg", "image/jpeg", []byte("jpeg")); err != nil {
		t.Fatal(err)
	}
	w := env.do(t, http.MethodGet, "/media/s1/c1-still.jpg", "")
	if w.Code != http.StatusOK || w.Body.String() != "jpeg" {
		t.Fatalf("media = %d %q", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
	if w := env.do(t, http.MethodGet, "/media/s1/none.gif", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing media = %d", w.Code)
	}
}

// readEvent reads one SSE event, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) (name, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventStreamSnapshotThenLive(t *testing.T) {
	env := newTestEnv(t)
	session := types.NewSessionID()
	old := env.saveMoment(t, session, "Earlier")

	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?session="+string(session), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	r := bufio.NewReader(resp.Body)

	name, data := readEvent(t, r)
	if name != "snapshot" {
		t.Fatalf("first event = %q", name)
	}
	var snap []types.MomentEvent
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap) != 1 || snap[0].MomentID != old.ID {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Another session's event is filtered out; ours comes through.
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	env.hub.Publish(types.MomentEvent{MomentID: "other", SessionID: types.NewSessionID(), Title: "Other"})
	env.hub.Publish(types.MomentEvent{MomentID: "live", SessionID: session, Title: "Live"})

	name, data = readEvent(t, r)
	if name != "moment" {
		t.Fatalf("event = %q", name)
	}
	var ev types.MomentEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.MomentID != "live" || ev.Title != "Live" {
		t.Errorf("live event = %+v", ev)
	}
}
