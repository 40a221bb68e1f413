package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/engine"
	"planline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v0", Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestGenerateScheduleEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users/alice/tasks", map[string]any{
		"title":             "write report",
		"estimated_minutes": 120,
		"priority":          "high",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Status != "pending" {
		t.Fatalf("new task status %s, want pending", created.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/users/alice/schedule/generate", map[string]any{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("generate status %d: %s", res.StatusCode, string(data))
	}
	var gen GenerateResponse
	if err := json.Unmarshal(data, &gen); err != nil {
		t.Fatalf("unmarshal generate response: %v", err)
	}
	if len(gen.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d: %s", len(gen.Entries), string(data))
	}
	if gen.Entries[0].TaskID != created.ID {
		t.Fatalf("entry for wrong task: %+v", gen.Entries[0])
	}
	if len(gen.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %+v", gen.Conflicts)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/users/alice/schedule", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get schedule status %d: %s", res.StatusCode, string(data))
	}
	var entries []EntryResponse
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("unmarshal entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(entries))
	}
}

func TestCreateTaskValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/users/alice/tasks", map[string]any{
		"title":             "broken",
		"estimated_minutes": -5,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("error code %q, want validation_failed: %s", envelope.Error.Code, string(data))
	}
}

func TestSplitTaskEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users/alice/tasks", map[string]any{
		"title":             "long job",
		"estimated_minutes": 130,
	})
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+created.ID+"/split", map[string]any{
		"intervals": 3,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("split status %d: %s", res.StatusCode, string(data))
	}
	var intervals []IntervalResponse
	if err := json.Unmarshal(data, &intervals); err != nil {
		t.Fatalf("unmarshal intervals: %v", err)
	}
	if len(intervals) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(intervals))
	}
	if intervals[0].DurationMinutes != 44 || intervals[2].DurationMinutes != 42 {
		t.Fatalf("unexpected durations: %+v", intervals)
	}
}

func TestWorkingHoursRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/users/alice/working-hours", map[string]any{
		"day_start":   "08:30",
		"day_end":     "16:30",
		"active_days": []string{"monday", "wednesday", "friday"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/users/alice/working-hours", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var prefs WorkingHoursResponse
	if err := json.Unmarshal(data, &prefs); err != nil {
		t.Fatalf("unmarshal prefs: %v", err)
	}
	if prefs.DayStart != "08:30" || len(prefs.ActiveDays) != 3 {
		t.Fatalf("unexpected prefs: %+v", prefs)
	}
}

func TestResolveConflictUnknownID(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/conflicts/missing/resolve", map[string]any{
		"action": "cancel-entry",
	})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}
