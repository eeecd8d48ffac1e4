package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/directory"
	"github.com/shareguard/shareguard/pkg/groups"
	"github.com/shareguard/shareguard/pkg/health"
	"github.com/shareguard/shareguard/pkg/monitor"
	"github.com/shareguard/shareguard/pkg/notify"
	"github.com/shareguard/shareguard/pkg/principal"
	"github.com/shareguard/shareguard/pkg/scanner"
	"github.com/shareguard/shareguard/pkg/store"
)

const (
	sidJdoe   = "S-1-5-21-1-2-3-1000"
	sidAsmith = "S-1-5-21-1-2-3-1001"
)

type env struct {
	handlers *Handlers
	store    *store.Store
	monitor  *monitor.Monitor
	notify   *notify.Service
	router   http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dir := directory.NewStatic()
	dir.AddAccount(directory.Account{SID: sidJdoe, Name: "jdoe", Domain: "CORP", Type: directory.AccountUser})
	dir.AddAccount(directory.Account{SID: sidAsmith, Name: "asmith", Domain: "CORP", Type: directory.AccountUser})

	resolver := principal.NewResolver(dir)
	tracer := groups.NewTracer(dir, resolver)

	src := scanner.NewStatic()
	mt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, src.AddFolder(`C:\Shares\Finance`, &scanner.Descriptor{
		OwnerSID:    sidJdoe,
		DACLPresent: true,
		ACEs: []scanner.RawACE{
			{SID: sidJdoe, Mask: 0x001F01FF},
			{SID: sidAsmith, Mask: 0x00120089},
		},
	}, mt))
	sc := scanner.New(src, resolver, tracer, nil)

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "api.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ns := notify.NewService(notify.Config{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ns.Stop(ctx)
	})

	an := health.New(st, sc, health.Config{})
	mon := monitor.New(sc, st, ns, monitor.Config{
		CheckInterval: time.Hour,
		StopGrace:     2 * time.Second,
	})
	t.Cleanup(func() { _ = mon.Stop(context.Background()) })

	h := NewHandlers(sc, st, an, mon, ns, nil)
	return &env{
		handlers: h,
		store:    st,
		monitor:  mon,
		notify:   ns,
		router:   NewRouter(h, nil, nil, time.Minute),
	}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLiveness(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeResponse(t, rec).Status)
}

func TestScanEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/scan",
		map[string]any{"path": `C:\Shares\Finance`})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, `C:\Shares\Finance`, data["path"])
	assert.NotEmpty(t, data["checksum"])
	aces, ok := data["aces"].([]any)
	require.True(t, ok)
	assert.Len(t, aces, 2)
}

func TestScanValidation(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/scan", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/scan",
		map[string]any{"path": `C:\Shares\Missing`})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/scan",
		map[string]any{"path": `C:\Windows\System32`})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthRunAndScore(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/health/run",
		map[string]any{"paths": []string{`C:\Shares\Finance`}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/health/score", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeResponse(t, rec).Data.(map[string]any)
	assert.Contains(t, data, "score")
	assert.Contains(t, data, "active_issues")
}

func TestHealthRunWithoutPaths(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/health/run", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueStatusTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	issue := &store.Issue{
		Path:      `C:\Shares\Finance`,
		IssueType: store.IssueBrokenInheritance,
		Severity:  acl.SeverityMedium,
		RiskScore: 7.5,
	}
	require.NoError(t, e.store.UpsertIssue(ctx, issue))

	rec := e.do(t, http.MethodPatch, "/api/health/issues/"+issue.ID,
		map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPatch, "/api/health/issues/"+issue.ID,
		map[string]any{"status": "nonsense"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPatch, "/api/health/issues/missing",
		map[string]any{"status": "ignored"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonitorLifecycle(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/monitor/start",
		map[string]any{"paths": []string{`C:\Shares\Finance`}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/monitor/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, true, data["active"])

	rec = e.do(t, http.MethodPost, "/api/monitor/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, false, data["active"])
}

func TestSnapshotLookup(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/snapshots?path="+
		`C:%5CShares%5CFinance`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A scan does not populate the cache; the monitor does.
	require.NoError(t, e.monitor.Start([]string{`C:\Shares\Finance`}))
	waitForEntry := func() bool {
		rec := e.do(t, http.MethodGet, "/api/snapshots?path="+
			`C:%5CShares%5CFinance`, nil)
		return rec.Code == http.StatusOK
	}
	deadline := time.Now().Add(2 * time.Second)
	for !waitForEntry() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, waitForEntry())

	rec = e.do(t, http.MethodGet, "/api/snapshots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangesListing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.store.AddChange(ctx, &store.ChangeRecord{
		Path:       `C:\Shares\Finance`,
		ChangeType: store.ChangePermissionAdded,
		Severity:   acl.SeverityMedium,
		Message:    "1 permission entry added for CORP\\asmith",
	}))

	rec := e.do(t, http.MethodGet, "/api/changes?path="+
		`C:%5CShares%5CFinance`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeResponse(t, rec).Data.(map[string]any)
	assert.EqualValues(t, 1, data["count"])

	rec = e.do(t, http.MethodGet, "/api/changes?since=garbage", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJWTAuthGuardsRoutes(t *testing.T) {
	e := newEnv(t)
	jwtService, err := NewJWTService(strings.Repeat("s", 32), time.Hour)
	require.NoError(t, err)
	router := NewRouter(e.handlers, jwtService, nil, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/monitor/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := jwtService.GenerateToken("auditor")
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/monitor/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health probe stays open.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenValidation(t *testing.T) {
	svc, err := NewJWTService(strings.Repeat("s", 32), time.Hour)
	require.NoError(t, err)

	_, err = NewJWTService("short", time.Hour)
	assert.ErrorIs(t, err, ErrInvalidSecretLength)

	token, expires, err := svc.GenerateToken("auditor")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "auditor", claims.Username)

	_, err = svc.ValidateToken(token + "tampered")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewJWTService(strings.Repeat("x", 32), time.Hour)
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWebSocketSubscription(t *testing.T) {
	e := newEnv(t)

	server := httptest.NewServer(e.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") +
		"/api/ws?min_severity=high&user_id=auditor"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	// connection_established arrives first.
	var established notify.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&established))
	assert.Equal(t, notify.TypeConnectionEstablished, established.Type)

	// Low severity is filtered, high passes.
	e.notify.Publish(notify.NewEnvelope(notify.TypePermissionChange,
		"t", "low change", acl.SeverityLow, map[string]any{"path": `C:\Shares\A`}))
	e.notify.Publish(notify.NewEnvelope(notify.TypePermissionChange,
		"t", "high change", acl.SeverityHigh, map[string]any{"path": `C:\Shares\B`}))

	var got notify.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, acl.SeverityHigh, got.Severity)

	// Ping round trip through the read pump.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong notify.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, notify.TypePong, pong.Type)
}
