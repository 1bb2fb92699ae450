package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattend/internal/attendance"
	"smartattend/internal/form"
	"smartattend/internal/httpmiddleware"
	"smartattend/internal/notify"
	"smartattend/internal/qr"
	"smartattend/internal/queue"
	"smartattend/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testStart = time.Date(2025, 9, 15, 11, 30, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	router *gin.Engine
	server *Server
	clock  clockwork.FakeClock
	store  *storage.Memory
	queue  *queue.InMemory
	notes  *notify.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, storage.NewMemory(), clockwork.NewFakeClockAt(testStart))
}

func newHarnessWithStore(t *testing.T, store *storage.Memory, clock clockwork.FakeClock) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.NewInMemory(16)
	notes := notify.NewMemory()
	att := attendance.NewService(attendance.NewMemoryRepository(), q, clock, 5*time.Minute, logger)

	srv := New(Config{
		JWTIssuer:     "smartattend-test",
		JWTSigningKey: "test-key",
		ClientTTL:     24 * time.Hour,
	}, Deps{
		Store:         store,
		Attendance:    att,
		Notifications: notes,
		Clock:         clock,
		Logger:        logger,
	})
	r := gin.New()
	srv.Routes(r)
	t.Cleanup(srv.Close)
	return &harness{t: t, router: r, server: srv, clock: clock, store: store, queue: q, notes: notes}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (h *harness) newClient() string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/v1/clients", "", nil)
	require.Equal(h.t, http.StatusCreated, w.Code)
	tok, _ := decode(h.t, w)["token"].(string)
	require.NotEmpty(h.t, tok)
	return tok
}

func (h *harness) signIn(role, email string) string {
	h.t.Helper()
	tok := h.newClient()
	require.Equal(h.t, http.StatusOK, h.do(http.MethodPost, "/v1/flow/role", tok, gin.H{"role": role}).Code)
	w := h.do(http.MethodPost, "/v1/auth/login", tok, gin.H{"email": email, "password": "secret"})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	return tok
}

func TestClientTokenRequired(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/view", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/view", "not-a-token", nil).Code)

	tok := h.newClient()
	w := h.do(http.MethodGet, "/v1/view", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "roleSelect", body["view"])
	assert.Nil(t, body["user"])
}

func TestFlowTransitions(t *testing.T) {
	h := newHarness(t)
	tok := h.newClient()

	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/v1/flow/register", tok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/flow/role", tok, gin.H{"role": "janitor"}).Code)

	w := h.do(http.MethodPost, "/v1/flow/role", tok, gin.H{"role": "teacher"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "login", body["view"])
	assert.Equal(t, "teacher", body["role"])
	assert.NotNil(t, body["roleConfig"])

	assert.Equal(t, "register", decode(t, h.do(http.MethodPost, "/v1/flow/register", tok, nil))["view"])
	assert.Equal(t, "login", decode(t, h.do(http.MethodPost, "/v1/flow/login", tok, nil))["view"])
	assert.Equal(t, "roleSelect", decode(t, h.do(http.MethodPost, "/v1/flow/back", tok, nil))["view"])
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/v1/flow/back", tok, nil).Code)
}

func TestLoginDemoStudent(t *testing.T) {
	h := newHarness(t)
	tok := h.signIn("student", "student@kiit.edu")

	body := decode(t, h.do(http.MethodGet, "/v1/view", tok, nil))
	assert.Equal(t, "studentDashboard", body["view"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "1", user["id"])
	assert.Equal(t, "student", user["role"])

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/student/dashboard", tok, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/student/report", tok, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/student/schedule", tok, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/v1/teacher/dashboard", tok, nil).Code)
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t)
	tok := h.newClient()

	w := h.do(http.MethodPost, "/v1/auth/login", tok, gin.H{"email": "student@kiit.edu", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "no role selected")

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/flow/role", tok, gin.H{"role": "student"}).Code)

	w = h.do(http.MethodPost, "/v1/auth/login", tok, gin.H{"email": "student@kiit.edu"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, form.MsgFillAllFields, decode(t, w)["error"])

	w = h.do(http.MethodPost, "/v1/auth/login", tok, gin.H{"email": "teacher@kiit.edu", "password": "secret"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, form.MsgInvalidCredentials, decode(t, w)["error"])

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/student/dashboard", tok, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/auth/me", tok, nil).Code)
}

func TestRegisterTeacher(t *testing.T) {
	h := newHarness(t)
	tok := h.newClient()
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/flow/role", tok, gin.H{"role": "teacher"}).Code)

	reg := gin.H{
		"firstName":       "Ada",
		"lastName":        "Lovelace",
		"email":           "ada@kiit.edu",
		"password":        "secret1",
		"confirmPassword": "secret2",
		"department":      "Mathematics",
		"employeeId":      "EMP042",
	}
	w := h.do(http.MethodPost, "/v1/auth/register", tok, reg)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, form.MsgPasswordMismatch, body["error"])
	assert.Equal(t, "ConfirmPassword", body["field"])

	reg["confirmPassword"] = "secret1"
	w = h.do(http.MethodPost, "/v1/auth/register", tok, reg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, "teacherDashboard", body["view"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "EMP042", user["employeeId"])
	assert.Len(t, user["id"], 9)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/teacher/dashboard", tok, nil).Code)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	tok := h.signIn("teacher", "teacher@kiit.edu")

	w := h.do(http.MethodPost, "/v1/auth/logout", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "roleSelect", body["view"])
	assert.Nil(t, body["user"])
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/auth/me", tok, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/teacher/dashboard", tok, nil).Code)
}

func TestSessionSurvivesRestart(t *testing.T) {
	store := storage.NewMemory()
	clock := clockwork.NewFakeClockAt(testStart)
	first := newHarnessWithStore(t, store, clock)
	tok := first.signIn("student", "student@kiit.edu")

	second := newHarnessWithStore(t, store, clock)
	body := decode(t, second.do(http.MethodGet, "/v1/view", tok, nil))
	assert.Equal(t, "studentDashboard", body["view"])
}

func TestSweepReleasesIdleClients(t *testing.T) {
	h := newHarness(t)
	tok := h.signIn("student", "student@kiit.edu")
	idle := h.newClient()
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/view", idle, nil).Code)
	assert.Zero(t, h.server.Sweep(time.Hour))

	h.clock.Advance(30 * time.Minute)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/view", tok, nil).Code)
	h.clock.Advance(45 * time.Minute)
	assert.Equal(t, 1, h.server.Sweep(time.Hour), "only the untouched client is idle")

	h.clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, h.server.Sweep(time.Hour))

	body := decode(t, h.do(http.MethodGet, "/v1/view", tok, nil))
	assert.Equal(t, "studentDashboard", body["view"], "user restored from storage")
}

func TestTeacherQRLifecycle(t *testing.T) {
	h := newHarness(t)
	tok := h.signIn("teacher", "teacher@kiit.edu")

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/teacher/qr", tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/teacher/sessions/99/qr", tok, nil).Code)

	w := h.do(http.MethodPost, "/v1/teacher/sessions/2/qr", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "QR123456", body["value"])
	assert.Equal(t, float64(300), body["remaining"])
	assert.Equal(t, true, body["hasExpiry"])
	assert.Equal(t, "qr-session-2.png", body["downloadName"])
	assert.True(t, strings.HasPrefix(body["image"].(string), "data:image/png;base64,"))

	w = h.do(http.MethodGet, "/v1/teacher/qr/image.png", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "qr-session-2.png")

	// No stored code: a session payload is generated and no timer runs.
	w = h.do(http.MethodPost, "/v1/teacher/sessions/1/qr", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	id, ok := qr.ParseSessionPayload(body["value"].(string))
	require.True(t, ok)
	assert.Equal(t, "1", id)
	assert.Equal(t, false, body["hasExpiry"])
	assert.Equal(t, float64(0), body["remaining"])

	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodPost, "/v1/teacher/qr/publish", tok, nil).Code)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/v1/teacher/qr", tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/teacher/qr", tok, nil).Code)
}

func TestTeacherSessions(t *testing.T) {
	h := newHarness(t)
	tok := h.signIn("teacher", "teacher@kiit.edu")

	w := h.do(http.MethodPost, "/v1/teacher/sessions/3/start", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", decode(t, w)["activeSession"])

	body := decode(t, h.do(http.MethodGet, "/v1/teacher/dashboard", tok, nil))
	assert.Equal(t, "3", body["dashboard"].(map[string]any)["activeSession"])
	assert.Nil(t, body["generated"])

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/teacher/sessions/3/end", tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/teacher/sessions/7/end", tok, nil).Code)

	report := decode(t, h.do(http.MethodGet, "/v1/teacher/sessions/1/report", tok, nil))
	assert.Equal(t, float64(4), report["present"])
	assert.Equal(t, float64(2), report["absent"])

	w = h.do(http.MethodPost, "/v1/teacher/qr/generate", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	generated := decode(t, w)["value"].(string)
	body = decode(t, h.do(http.MethodGet, "/v1/teacher/dashboard", tok, nil))
	assert.Equal(t, generated, body["generated"].(map[string]any)["value"])
}

func TestStudentScanMarksAttendance(t *testing.T) {
	h := newHarness(t)
	tok := h.signIn("student", "student@kiit.edu")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = notify.NewConsumer(h.notes, h.clock, nil).Run(ctx, h.queue) }()

	w := h.do(http.MethodPost, "/v1/student/scanner", tok, gin.H{"granted": false})
	require.Equal(t, http.StatusOK, w.Code)
	scanner := decode(t, w)["scanner"].(map[string]any)
	assert.Equal(t, qr.MsgCameraUnavailable, scanner["error"])
	assert.Equal(t, false, scanner["scanning"])

	w = h.do(http.MethodPost, "/v1/student/scanner/retry", tok, gin.H{"granted": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["scanner"].(map[string]any)["scanning"])

	payload := qr.SessionPayload("2", h.clock.Now())
	w = h.do(http.MethodPost, "/v1/student/scanner/scan", tok, gin.H{"payload": payload})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, payload, body["result"])
	assert.Equal(t, true, body["created"])
	assert.Equal(t, "2", body["record"].(map[string]any)["sessionId"])

	state := decode(t, h.do(http.MethodGet, "/v1/student/scanner", tok, nil))
	assert.Equal(t, false, state["scanning"], "camera released after a scan")

	w = h.do(http.MethodPost, "/v1/student/scanner/scan", tok, gin.H{"payload": payload})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["created"])

	stats := decode(t, h.do(http.MethodGet, "/v1/student/stats", tok, nil))
	assert.Len(t, stats["history"], 1)

	require.Eventually(t, func() bool {
		list := decode(t, h.do(http.MethodGet, "/v1/notifications", tok, nil))["notifications"].([]any)
		return len(list) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/v1/student/scanner", tok, nil).Code)
}

func TestCharts(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{
		"/v1/charts/bar.svg",
		"/v1/charts/line.svg",
		"/v1/charts/pie.svg",
		"/v1/charts/weekly.svg",
		"/v1/charts/bar.svg?values=10,20&labels=A,B",
		"/v1/charts/pie.svg?present=3&absent=1",
	} {
		w := h.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"), path)
		assert.Contains(t, w.Body.String(), "<svg", path)
	}
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/charts/line.svg?values=1,x", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/charts/pie.svg?absent=-2", "", nil).Code)
}

func TestHealthAndDepartments(t *testing.T) {
	h := newHarness(t)
	h.server.deps.Health = map[string]HealthCheck{
		"redis": func(context.Context) bool { return false },
	}
	w := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])

	w = h.do(http.MethodGet, "/v1/departments", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["departments"], len(form.Departments))
}

func TestQRSocketStreamsCountdown(t *testing.T) {
	h := newHarness(t)
	tok := h.signIn("teacher", "teacher@kiit.edu")
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/teacher/sessions/2/qr", tok, nil).Code)

	ts := httptest.NewServer(h.router)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/teacher/qr/ws?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() wsMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var m struct {
			Event string `json:"event"`
			Data  struct {
				Remaining int  `json:"remaining"`
				Done      bool `json:"done"`
			} `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&m))
		return wsMessage{Event: m.Event, Data: m.Data.Remaining}
	}

	first := read()
	assert.Equal(t, eventCountdown, first.Event)
	assert.Equal(t, 300, first.Data)

	// Both tickers exist once the first message is out.
	h.clock.Advance(time.Second)
	next := read()
	assert.Equal(t, eventCountdown, next.Event)
	assert.Equal(t, 299, next.Data)

	require.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/v1/teacher/qr", tok, nil).Code)
	h.clock.Advance(time.Second)
	assert.Equal(t, eventClosed, read().Event)
}

func TestQRSocketWithoutModal(t *testing.T) {
	h := newHarness(t)
	tok := h.signIn("teacher", "teacher@kiit.edu")
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/teacher/qr/ws", tok, nil).Code)
}

func TestClientRateLimit(t *testing.T) {
	h := newHarness(t)
	h.server.deps.Limiter = httpmiddleware.NewSimpleTokenBucket(1, 1, h.clock)
	r := gin.New()
	h.server.Routes(r)
	h.router = r

	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/v1/clients", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/v1/clients", "", nil).Code)

	h.clock.Advance(time.Minute)
	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/v1/clients", "", nil).Code)
}
