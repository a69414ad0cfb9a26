package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudcompute/webclient/internal/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialPage(t *testing.T, env *testEnv, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	header := http.Header{}
	header.Set(SessionHeader, sessionID)

	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil reads messages until one of the given type satisfies match
func readUntil(t *testing.T, ws *websocket.Conn, msgType string, match func(WSMessage) bool) WSMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg WSMessage
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == msgType && (match == nil || match(msg)) {
			return msg
		}
	}
}

func TestWebSocket_StateFeed(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	ws := dialPage(t, env, p.ID())

	connected := readUntil(t, ws, MsgTypeConnected, nil)
	assert.Equal(t, p.ID(), connected.ID)

	initial := readUntil(t, ws, MsgTypeState, nil)
	var st models.PageState
	require.NoError(t, json.Unmarshal(initial.Payload, &st))
	assert.Equal(t, p.ID(), st.SessionID)

	require.NoError(t, p.OpenRegistration())
	readUntil(t, ws, MsgTypeState, func(m WSMessage) bool {
		var st models.PageState
		return json.Unmarshal(m.Payload, &st) == nil && st.Registration.Open
	})
}

func TestWebSocket_PingPong(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	ws := dialPage(t, env, p.ID())

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1"}))
	pong := readUntil(t, ws, MsgTypePong, nil)
	assert.Equal(t, "p1", pong.ID)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "bogus"}))
	readUntil(t, ws, MsgTypeError, nil)
}

func TestWebSocket_PingKeepsSessionAlive(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	ws := dialPage(t, env, p.ID())
	readUntil(t, ws, MsgTypeState, nil)

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1"}))
	readUntil(t, ws, MsgTypePong, nil)

	assert.Zero(t, env.sessions.CleanupOldSessions(100*time.Millisecond))
	_, ok := env.sessions.Get(p.ID())
	assert.True(t, ok, "an open page that keeps pinging must not be reaped")
}

func TestNewAlerts(t *testing.T) {
	a := models.Alert{ID: 1, Message: "A"}
	b := models.Alert{ID: 2, Message: "B"}
	c := models.Alert{ID: 3, Message: "C"}

	tests := []struct {
		name     string
		alerts   []models.Alert
		lastSent int64
		want     []models.Alert
	}{
		{name: "nothing pending", alerts: nil, lastSent: 0, want: nil},
		{name: "first alert", alerts: []models.Alert{a}, lastSent: 0, want: []models.Alert{a}},
		{name: "already sent", alerts: []models.Alert{a}, lastSent: 1, want: nil},
		{name: "ack and new alert in one snapshot", alerts: []models.Alert{b}, lastSent: 1, want: []models.Alert{b}},
		{name: "tail after sent ones", alerts: []models.Alert{a, b, c}, lastSent: 1, want: []models.Alert{b, c}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newAlerts(tt.alerts, tt.lastSent))
		})
	}
}

func TestWebSocket_AlertAndAck(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	env.backend.RegisterWith(&models.RegistrationResponse{Error: "User already exists"}, nil)
	ws := dialPage(t, env, p.ID())
	readUntil(t, ws, MsgTypeState, nil)

	_, ok, err := p.SubmitRegistration("ann", "ann@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	alert := readUntil(t, ws, MsgTypeAlert, nil)
	var payload WSAlertPayload
	require.NoError(t, json.Unmarshal(alert.Payload, &payload))
	assert.Equal(t, "User already exists", payload.Message)
	assert.Equal(t, int64(1), payload.ID)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeAck}))
	readUntil(t, ws, MsgTypeState, func(m WSMessage) bool {
		var st models.PageState
		return json.Unmarshal(m.Payload, &st) == nil && len(st.Alerts) == 0
	})
}

func TestWebSocket_SessionCloseEndsFeed(t *testing.T) {
	env := newTestEnv(t)
	p := env.openPage(t)
	ws := dialPage(t, env, p.ID())
	readUntil(t, ws, MsgTypeState, nil)

	require.NoError(t, env.sessions.Close(p.ID()))

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg WSMessage
		err := ws.ReadJSON(&msg)
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			return
		}
	}
}

func TestWebSocket_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.e)
	defer srv.Close()

	header := http.Header{}
	header.Set(SessionHeader, "missing")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
