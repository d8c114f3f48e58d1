package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"building_monitor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// --- parseInterval unit tests ---

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", 5 * time.Second},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=2m", 5 * time.Second},
		{"interval_ms_too_large", "/ws?interval_ms=120000", 5 * time.Second},
		{"interval_invalid_string", "/ws?interval=bogus", 5 * time.Second},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", 5 * time.Second},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

// --- websocket integration tests ---

func wsURL(t *testing.T, base, query string) string {
	t.Helper()
	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query
	return u.String()
}

func TestWebSocket_StatusStream_InitialAndPeriodic(t *testing.T) {
	mon := &mockMonitoring{groups: sampleGroups()}
	s := &service.Service{Monitoring: mon, Authorization: &mockAuth{parseSubject: "operator"}}

	srv := httptest.NewServer(newTestRouter(s))
	defer srv.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(t, srv.URL, "interval_ms=20"), authHeader("valid"))
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	type envelope struct {
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if env.Type != "groups" || len(env.Data) == 0 {
		t.Fatalf("bad envelope: %+v", env)
	}
	var groups []service.GroupStatus
	if err := json.Unmarshal(env.Data, &groups); err != nil {
		t.Fatalf("unmarshal groups: %v", err)
	}
	if len(groups) != 2 || groups[0].Group != "north" || !groups[1].AuthBlocked {
		t.Fatalf("unexpected groups: %+v", groups)
	}

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	env = envelope{}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if env.Type != "groups" {
		t.Fatalf("expected type=groups, got %+v", env)
	}
}

func TestWebSocket_RejectsMissingToken(t *testing.T) {
	s := &service.Service{Monitoring: &mockMonitoring{}, Authorization: &mockAuth{}}

	srv := httptest.NewServer(newTestRouter(s))
	defer srv.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(wsURL(t, srv.URL, ""), nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake failure without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
}

func TestWebSocket_AcceptsQueryToken(t *testing.T) {
	auth := &mockAuth{parseSubject: "operator"}
	s := &service.Service{Monitoring: &mockMonitoring{groups: sampleGroups()}, Authorization: auth}

	srv := httptest.NewServer(newTestRouter(s))
	defer srv.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(t, srv.URL, "access_token=qtok"), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("read initial: %v", err)
	}
}

func TestWebSocket_GroupFilter(t *testing.T) {
	s := &service.Service{Monitoring: &mockMonitoring{groups: sampleGroups()}, Authorization: &mockAuth{}}

	srv := httptest.NewServer(newTestRouter(s))
	defer srv.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(t, srv.URL, "group=south"), authHeader("valid"))
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	var env struct {
		Type string                `json:"type"`
		Data []service.GroupStatus `json:"data"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != "groups" || len(env.Data) != 1 || env.Data[0].Group != "south" {
		t.Fatalf("unexpected frame: %+v", env)
	}
}

func TestWebSocket_UnknownGroupSendsErrorAndCloses(t *testing.T) {
	s := &service.Service{Monitoring: &mockMonitoring{groups: sampleGroups()}, Authorization: &mockAuth{}}

	srv := httptest.NewServer(newTestRouter(s))
	defer srv.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(t, srv.URL, "group=west"), authHeader("valid"))
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	var env struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != "error" || env.Error == "" {
		t.Fatalf("unexpected frame: %+v", env)
	}

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the stream to close after the error frame")
	}
}
