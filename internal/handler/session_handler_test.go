package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/jobly/internal/model"
	"github.com/hitoshi/jobly/internal/session"
)

func TestSessionHandler_Get_Authenticated(t *testing.T) {
	svc := &mockSessionService{
		snapshotFn: func() session.Snapshot { return authenticatedSnapshot(testUser(9, 3)) },
	}
	h := NewSessionHandler(svc, discardLogger())

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp sessionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Status != "authenticated" || !resp.Authenticated {
		t.Errorf("status = %q authenticated = %v", resp.Status, resp.Authenticated)
	}
	if resp.User == nil || resp.User.Username != "testuser" {
		t.Fatalf("user = %+v, want testuser", resp.User)
	}
	if len(resp.User.Applications) != 2 || resp.User.Applications[0] != 3 || resp.User.Applications[1] != 9 {
		t.Errorf("applications = %v, want [3 9]", resp.User.Applications)
	}
}

func TestSessionHandler_Get_Anonymous(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{}, discardLogger())

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp["status"] != "anonymous" || resp["authenticated"] != false || resp["user"] != nil {
		t.Errorf("response = %v, want anonymous without user", resp)
	}
}

func TestSessionHandler_Health(t *testing.T) {
	svc := &mockSessionService{
		snapshotFn: func() session.Snapshot { return session.Snapshot{Status: model.StatusInitializing} },
	}
	h := NewSessionHandler(svc, discardLogger())

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp["status"] != "ok" || resp["session"] != "initializing" {
		t.Errorf("response = %v", resp)
	}
}

// readEvent はSSEストリームから次のsessionイベントのdataを読み取る。
func readEvent(t *testing.T, r *bufio.Reader) sessionResponse {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			if event != sessionEventName {
				t.Fatalf("event = %q, want %q", event, sessionEventName)
			}
			var resp sessionResponse
			if err := json.Unmarshal([]byte(data), &resp); err != nil {
				t.Fatalf("failed to decode event data: %v", err)
			}
			return resp
		}
	}
}

func TestSessionHandler_Events_StreamsChanges(t *testing.T) {
	subscribed := make(chan func(session.Snapshot), 1)
	unsubscribed := make(chan struct{})
	svc := &mockSessionService{
		snapshotFn: func() session.Snapshot { return session.Snapshot{Status: model.StatusInitializing} },
		subscribeFn: func(fn func(session.Snapshot)) func() {
			subscribed <- fn
			return func() { close(unsubscribed) }
		},
	}
	h := NewSessionHandler(svc, discardLogger())

	srv := httptest.NewServer(http.HandlerFunc(h.Events))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if first := readEvent(t, reader); first.Status != "initializing" {
		t.Errorf("first event status = %q, want initializing", first.Status)
	}

	var notify func(session.Snapshot)
	select {
	case notify = <-subscribed:
	case <-time.After(time.Second):
		t.Fatal("handler did not subscribe")
	}

	notify(authenticatedSnapshot(testUser()))
	next := readEvent(t, reader)
	if next.Status != "authenticated" || next.User == nil || next.User.Username != "testuser" {
		t.Errorf("next event = %+v, want authenticated testuser", next)
	}

	cancel()
	select {
	case <-unsubscribed:
	case <-time.After(time.Second):
		t.Error("handler should unsubscribe when the client disconnects")
	}
}

func TestSessionHandler_Events_Heartbeat(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{}, discardLogger())
	h.heartbeat = 10 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(h.Events))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader)

	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read heartbeat: %v", err)
	}
	if line != ": heartbeat\n" {
		t.Errorf("line = %q, want heartbeat comment", line)
	}
}
