package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/podsync/internal/session"
)

func dialState(t *testing.T, e *testEnv, id string) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(e.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

// readUntil reads states until match returns true.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(session.State) bool) session.State {
	t.Helper()
	for {
		var st session.State
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			t.Fatalf("read state: %v", err)
		}
		if match(st) {
			return st
		}
	}
}

func TestStreamState_ClockReports(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	id := e.loadedSession(t)
	conn, ctx := dialState(t, e, id)

	// The first frame is the current state.
	var first session.State
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial state: %v", err)
	}

	if err := wsjson.Write(ctx, conn, clockReport{Position: 5, Playing: false}); err != nil {
		t.Fatalf("write report: %v", err)
	}
	st := readUntil(t, ctx, conn, func(st session.State) bool { return st.ActiveWord == 3 })
	if st.ActiveSentence != 1 || st.Speaker != "Bob" || !st.Loaded {
		t.Errorf("state = %+v", st)
	}
}

func TestStreamState_SessionDeletedClosesStream(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	id := e.loadedSession(t)
	conn, ctx := dialState(t, e, id)

	var st session.State
	if err := wsjson.Read(ctx, conn, &st); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if err := e.sessions.Delete(id); err != nil {
		t.Fatal(err)
	}

	for {
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusGoingAway {
				t.Errorf("close status = %v (%v), want going away", websocket.CloseStatus(err), err)
			}
			return
		}
	}
}

func TestStreamState_UnknownSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nope/ws", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
