package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codebridge/wabridge/internal/health"
	"github.com/codebridge/wabridge/internal/session"
)

// fakeDirectory implements Directory in-memory.
type fakeDirectory struct {
	states  map[string]session.AuthState
	infos   map[string]*session.Info
	initErr error

	initialized []string
	restarted   []string
	destroyed   []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		states: make(map[string]session.AuthState),
		infos:  make(map[string]*session.Info),
	}
}

func (f *fakeDirectory) CreateSession(id string) (string, error) {
	if id == "" {
		id = fmt.Sprintf("session_%d_abc123", time.Now().UnixMilli())
	}
	if _, exists := f.states[id]; exists {
		return "", fmt.Errorf("%w: %s", session.ErrSessionExists, id)
	}
	f.states[id] = session.AuthState{SessionID: id, ConnectionState: session.StateDisconnected}
	return id, nil
}

func (f *fakeDirectory) InitializeSession(ctx context.Context, id string) error {
	if _, exists := f.states[id]; !exists {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = append(f.initialized, id)
	return nil
}

func (f *fakeDirectory) DestroySession(ctx context.Context, id string) error {
	if _, exists := f.states[id]; !exists {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	delete(f.states, id)
	f.destroyed = append(f.destroyed, id)
	return nil
}

func (f *fakeDirectory) RestartSession(ctx context.Context, id string) error {
	if _, exists := f.states[id]; !exists {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	if f.initErr != nil {
		return f.initErr
	}
	f.restarted = append(f.restarted, id)
	return nil
}

func (f *fakeDirectory) ListSessions(ctx context.Context) []session.Entry {
	var entries []session.Entry
	for id, state := range f.states {
		entries = append(entries, session.Entry{State: state, Info: f.infos[id]})
	}
	return entries
}

func (f *fakeDirectory) GetSessionState(id string) (session.AuthState, error) {
	state, exists := f.states[id]
	if !exists {
		return session.AuthState{}, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	return state, nil
}

func (f *fakeDirectory) GetSessionInfo(id string) (*session.Info, error) {
	if _, exists := f.states[id]; !exists {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	return f.infos[id], nil
}

func (f *fakeDirectory) Stats() session.Stats {
	return session.Stats{Total: len(f.states)}
}

type fakeHealth struct {
	report health.Report
}

func (f *fakeHealth) Report() health.Report { return f.report }

func newTestServer(t *testing.T, dir Directory, healthSvc HealthReporter) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(dir, healthSvc, prometheus.NewRegistry(), logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestCreateSession(t *testing.T) {
	dir := newFakeDirectory()
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/sessions", map[string]string{"sessionId": "session_x"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}

	var created struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if created.SessionID != "session_x" {
		t.Errorf("Expected created id echoed, got %q", created.SessionID)
	}
}

func TestCreateSessionGeneratedID(t *testing.T) {
	dir := newFakeDirectory()
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if created.SessionID == "" {
		t.Error("Expected a generated session id")
	}
}

func TestCreateSessionDuplicate(t *testing.T) {
	dir := newFakeDirectory()
	ts := newTestServer(t, dir, &fakeHealth{})

	doJSON(t, http.MethodPost, ts.URL+"/sessions", map[string]string{"sessionId": "session_x"})
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/sessions", map[string]string{"sessionId": "session_x"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate session, got %d", resp.StatusCode)
	}
}

func TestSessionNotFoundMapsTo404(t *testing.T) {
	dir := newFakeDirectory()
	ts := newTestServer(t, dir, &fakeHealth{})

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/sessions/ghost"},
		{http.MethodDelete, "/sessions/ghost"},
		{http.MethodPost, "/sessions/ghost/connect"},
		{http.MethodPost, "/sessions/ghost/restart"},
		{http.MethodGet, "/sessions/ghost/qr"},
	}
	for _, c := range cases {
		resp, _ := doJSON(t, c.method, ts.URL+c.path, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", c.method, c.path, resp.StatusCode)
		}
	}
}

func TestConnectSession(t *testing.T) {
	dir := newFakeDirectory()
	dir.CreateSession("session_x")
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/sessions/session_x/connect", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}
	if len(dir.initialized) != 1 || dir.initialized[0] != "session_x" {
		t.Errorf("Expected session initialized, got %v", dir.initialized)
	}
}

func TestConnectSessionFailureMapsTo502(t *testing.T) {
	dir := newFakeDirectory()
	dir.CreateSession("session_x")
	dir.initErr = fmt.Errorf("failed to connect session session_x: connection refused")
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/sessions/session_x/connect", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502 for initialization failure, got %d", resp.StatusCode)
	}
}

func TestRestartSession(t *testing.T) {
	dir := newFakeDirectory()
	dir.CreateSession("session_x")
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/sessions/session_x/restart", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}
	if len(dir.restarted) != 1 {
		t.Errorf("Expected session restarted, got %v", dir.restarted)
	}
}

func TestDestroySession(t *testing.T) {
	dir := newFakeDirectory()
	dir.CreateSession("session_x")
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/sessions/session_x", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}
	if len(dir.destroyed) != 1 {
		t.Errorf("Expected session destroyed, got %v", dir.destroyed)
	}
}

func TestListSessions(t *testing.T) {
	dir := newFakeDirectory()
	dir.CreateSession("session_a")
	dir.CreateSession("session_b")
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var entries []session.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}
}

func TestListSessionsEmpty(t *testing.T) {
	ts := newTestServer(t, newFakeDirectory(), &fakeHealth{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if string(bytes.TrimSpace(body)) != "[]" {
		t.Errorf("Expected empty JSON array, got %s", body)
	}
}

func TestGetSession(t *testing.T) {
	dir := newFakeDirectory()
	dir.CreateSession("session_x")
	dir.states["session_x"] = session.AuthState{
		SessionID:       "session_x",
		IsAuthenticated: true,
		IsReady:         true,
		PhoneNumber:     "5511999999999",
		ConnectionState: session.StateConnected,
	}
	dir.infos["session_x"] = &session.Info{SessionID: "session_x", IsActive: true}
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/sessions/session_x", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var entry session.Entry
	if err := json.Unmarshal(body, &entry); err != nil {
		t.Fatal(err)
	}
	if entry.State.ConnectionState != session.StateConnected {
		t.Errorf("Expected connected state, got %s", entry.State.ConnectionState)
	}
	if entry.Info == nil || !entry.Info.IsActive {
		t.Errorf("Expected active info, got %+v", entry.Info)
	}
}

func TestSessionQR(t *testing.T) {
	dir := newFakeDirectory()
	dir.CreateSession("session_x")
	dir.states["session_x"] = session.AuthState{
		SessionID:       "session_x",
		QRCode:          "qr-payload",
		ConnectionState: session.StateConnecting,
	}
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/sessions/session_x/qr", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var qr struct {
		QRCode string `json:"qrCode"`
	}
	if err := json.Unmarshal(body, &qr); err != nil {
		t.Fatal(err)
	}
	if qr.QRCode != "qr-payload" {
		t.Errorf("Expected QR payload, got %q", qr.QRCode)
	}
}

func TestSessionQRNotPending(t *testing.T) {
	dir := newFakeDirectory()
	dir.CreateSession("session_x")
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/sessions/session_x/qr", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 when no QR is pending, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, newFakeDirectory(), &fakeHealth{report: health.Report{
		Status: health.StatusHealthy,
	}})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var report health.Report
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatal(err)
	}
	if report.Status != health.StatusHealthy {
		t.Errorf("Expected healthy report, got %s", report.Status)
	}
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	ts := newTestServer(t, newFakeDirectory(), &fakeHealth{report: health.Report{
		Status: health.StatusUnhealthy,
	}})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for unhealthy report, got %d", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	dir := newFakeDirectory()
	dir.CreateSession("session_a")
	ts := newTestServer(t, dir, &fakeHealth{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var stats session.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 {
		t.Errorf("Expected 1 session in stats, got %d", stats.Total)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, newFakeDirectory(), &fakeHealth{})

	// Generate one instrumented request first.
	doJSON(t, http.MethodGet, ts.URL+"/stats", nil)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("wabridge_http_requests_total")) {
		t.Error("Expected request counter in metrics output")
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, newFakeDirectory(), &fakeHealth{})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/stats", nil)
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("Expected a request id header on the response")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/stats", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if got := resp2.Header.Get("X-Request-Id"); got != "caller-supplied" {
		t.Errorf("Expected caller-supplied request id echoed, got %q", got)
	}
}
