package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pulse/bot/internal/app"
	"pulse/bot/internal/authz"
	"pulse/bot/internal/config"
	"pulse/bot/internal/export"
	"pulse/bot/internal/store"
)

type memRecords struct {
	mu      sync.Mutex
	records map[string]*store.ProjectRecord
}

func (m *memRecords) Get(_ context.Context, client string) (*store.ProjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[client]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *memRecords) ListAll(_ context.Context) ([]*store.ProjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.ProjectRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRecords) Put(_ context.Context, rec *store.ProjectRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Client] = rec
	return nil
}

func (m *memRecords) Delete(_ context.Context, client string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, client)
	return nil
}

type stubMessenger struct {
	mu    sync.Mutex
	posts []string
}

func (s *stubMessenger) Post(_ context.Context, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, text)
	return nil
}

func (s *stubMessenger) Upload(_ context.Context, _ string, _ *export.Result) error { return nil }

type stubAnswerer struct{}

func (stubAnswerer) Answer(context.Context, string, authz.Context, bool) (string, error) {
	return "the answer", nil
}

type stubExtractor struct {
	mu    sync.Mutex
	calls int
}

func (s *stubExtractor) ExtractAndApply(context.Context, string, string) (*store.ProjectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &store.ProjectRecord{Client: "Acme", Status: "updated"}, nil
}

type stubKB struct{}

func (stubKB) Enabled() bool                                    { return false }
func (stubKB) SyncRecord(context.Context, *store.ProjectRecord) {}
func (stubKB) SyncAll(context.Context, []*store.ProjectRecord)  {}

type stubExporter struct{}

func (stubExporter) Render([]*store.ProjectRecord, string, export.Kind) (*export.Result, error) {
	return &export.Result{Data: []byte("pdf"), Filename: "r.pdf", MimeType: "application/pdf"}, nil
}

type stubEmails map[string]string

func (s stubEmails) UserEmail(_ context.Context, userID string) (string, error) {
	return s[userID], nil
}

const testSecret = "signing-secret"

type testEnv struct {
	handler   *Handler
	mux       *http.ServeMux
	records   *memRecords
	messenger *stubMessenger
	extractor *stubExtractor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	snapshots := config.NewManager(filepath.Join(t.TempDir(), "config.json"))
	if err := snapshots.Save(&config.Snapshot{
		MailboxChannelID: "CMAIL",
		ChannelMap: map[string]config.ChannelContext{
			"C1": {Role: "internal"},
		},
		AuthorizedUsers: []string{"team@pulse.dev"},
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	env := &testEnv{
		records:   &memRecords{records: map[string]*store.ProjectRecord{"Acme": {Client: "Acme", Status: "green"}}},
		messenger: &stubMessenger{},
		extractor: &stubExtractor{},
	}
	svc := app.NewService(app.Options{
		Records:         env.records,
		Snapshots:       snapshots,
		Extractor:       env.extractor,
		Answerer:        stubAnswerer{},
		KB:              stubKB{},
		Exporter:        stubExporter{},
		Messenger:       env.messenger,
		ReportChannelID: "CREPORT",
		AskWorkers:      1,
	})
	t.Cleanup(svc.Shutdown)

	env.handler = NewHandler(svc, stubEmails{"U1": "team@pulse.dev"}, testSecret)
	env.mux = env.handler.Routes()
	return env
}

func sign(t *testing.T, body string, at time.Time) (string, string) {
	t.Helper()
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	return ts, "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(t *testing.T, path, body, contentType string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	ts, sig := sign(t, body, time.Now())
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", sig)
	return req
}

func commandBody(command, text string) string {
	v := url.Values{}
	v.Set("command", command)
	v.Set("text", text)
	v.Set("user_id", "U1")
	v.Set("channel_id", "C1")
	return v.Encode()
}

func ephemeralText(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out["text"]
}

func TestCommandSignatureRejection(t *testing.T) {
	env := newTestEnv(t)
	body := commandBody("/report", "")

	t.Run("missing signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(body))
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})
	t.Run("stale timestamp", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(body))
		ts, sig := sign(t, body, time.Now().Add(-10*time.Minute))
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", sig)
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})
	t.Run("tampered body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(body+"&x=1"))
		ts, sig := sign(t, body, time.Now())
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", sig)
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestCommandUpdate(t *testing.T) {
	env := newTestEnv(t)
	req := signedRequest(t, "/slack/commands", commandBody("/update", "Acme ; status=launching ; blocker=DNS"), "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if text := ephemeralText(t, rec); !strings.Contains(text, "launching") {
		t.Errorf("response = %q", text)
	}
	if got := env.records.records["Acme"].Status; got != "launching" {
		t.Errorf("record status = %q", got)
	}
}

func TestCommandReport(t *testing.T) {
	env := newTestEnv(t)
	req := signedRequest(t, "/slack/commands", commandBody("/report", ""), "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if text := ephemeralText(t, rec); text != "Report posted." {
		t.Errorf("response = %q", text)
	}
	if len(env.messenger.posts) != 1 {
		t.Errorf("posts = %v", env.messenger.posts)
	}
}

func TestCommandUnknown(t *testing.T) {
	env := newTestEnv(t)
	req := signedRequest(t, "/slack/commands", commandBody("/bogus", ""), "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if text := ephemeralText(t, rec); !strings.Contains(text, "unknown command") {
		t.Errorf("response = %q", text)
	}
}

func TestEventURLVerification(t *testing.T) {
	env := newTestEnv(t)
	body := `{"type":"url_verification","challenge":"abc123"}`
	req := signedRequest(t, "/slack/events", body, "application/json")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Body.String() != "abc123" {
		t.Errorf("challenge echo = %q", rec.Body.String())
	}
}

func TestEventMailboxMessage(t *testing.T) {
	env := newTestEnv(t)
	body := `{"type":"event_callback","event_id":"Ev1","event":{"type":"message","channel":"CMAIL","text":"email body","ts":"1725.1"}}`
	req := signedRequest(t, "/slack/events", body, "application/json")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	waitFor(t, func() bool {
		env.extractor.mu.Lock()
		defer env.extractor.mu.Unlock()
		return env.extractor.calls == 1
	})
}

func TestEventAppMention(t *testing.T) {
	env := newTestEnv(t)
	body := `{"type":"event_callback","event_id":"Ev3","event":{"type":"app_mention","user":"U1","channel":"C1","text":"<@UBOT> how is Acme doing?","ts":"1725.2"}}`
	req := signedRequest(t, "/slack/events", body, "application/json")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	waitFor(t, func() bool {
		env.messenger.mu.Lock()
		defer env.messenger.mu.Unlock()
		for _, p := range env.messenger.posts {
			if p == "the answer" {
				return true
			}
		}
		return false
	})
}

func TestEventIgnoresBotMessages(t *testing.T) {
	env := newTestEnv(t)
	body := `{"type":"event_callback","event_id":"Ev2","event":{"type":"message","bot_id":"B1","channel":"CMAIL","text":"x","ts":"1"}}`
	req := signedRequest(t, "/slack/events", body, "application/json")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	time.Sleep(50 * time.Millisecond)
	env.extractor.mu.Lock()
	defer env.extractor.mu.Unlock()
	if env.extractor.calls != 0 {
		t.Errorf("bot message processed, calls = %d", env.extractor.calls)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestParseUpdateArgs(t *testing.T) {
	client, fields, err := parseUpdateArgs("Acme ; status = green ; blocker = none")
	if err != nil {
		t.Fatalf("parseUpdateArgs: %v", err)
	}
	if client != "Acme" {
		t.Errorf("client = %q", client)
	}
	if fields["status"] != "green" || fields["blocker"] != "none" {
		t.Errorf("fields = %v", fields)
	}

	if _, _, err := parseUpdateArgs("Acme"); err == nil {
		t.Error("expected usage error without fields")
	}
	if _, _, err := parseUpdateArgs("Acme ; nonsense"); err == nil {
		t.Error("expected error on malformed pair")
	}
}

func TestParseHistoryArgs(t *testing.T) {
	if client, full := parseHistoryArgs("Acme full"); client != "Acme" || !full {
		t.Errorf("got %q %v", client, full)
	}
	if client, full := parseHistoryArgs("Acme"); client != "Acme" || full {
		t.Errorf("got %q %v", client, full)
	}
}

func TestParseReportKind(t *testing.T) {
	if parseReportKind("summary") != export.KindSummary {
		t.Error("summary not parsed")
	}
	if parseReportKind("blockers") != export.KindBlockersOnly {
		t.Error("blockers not parsed")
	}
	if parseReportKind("") != export.KindFull {
		t.Error("default not full")
	}
}
