package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/msglog/msglog/internal/msglog"
	"github.com/msglog/msglog/internal/tokendiff"
	"github.com/msglog/msglog/internal/wireformat"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, rules msglog.Rules, opts Options) *Server {
	t.Helper()
	return New(msglog.NewStore(rules, tokendiff.New(tokendiff.Options{}), nil), opts)
}

func createEvent(id, content string) msglog.Event {
	return msglog.Event{Type: msglog.EventMessageCreate, Message: &msglog.Message{
		ID: id, ChannelID: "c1", Author: msglog.Author{ID: "u1"}, Content: content, Timestamp: t0,
	}}
}

func updateEvent(id, content string, sec int) msglog.Event {
	edited := t0.Add(time.Duration(sec) * time.Second)
	ev := createEvent(id, content)
	ev.Type = msglog.EventMessageUpdate
	ev.Message.EditedTimestamp = &edited
	return ev
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{})
	rec := do(t, s.Handler(), "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPIDiff_JSON(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{})
	rec := do(t, s.Handler(), "POST", "/api/diff", diffRequest{Old: "cat", New: "cot"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, wireformat.ContentTypeJSON, rec.Header().Get("Content-Type"))

	var resp diffResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, tokendiff.Result{
		{Op: tokendiff.OpUnchanged, Text: "c"},
		{Op: tokendiff.OpRemoved, Text: "a"},
		{Op: tokendiff.OpAdded, Text: "o"},
		{Op: tokendiff.OpUnchanged, Text: "t"},
	}, resp.Segments)
	assert.Equal(t, tokendiff.StrategyLCS, resp.Stats.Strategy)
	assert.Equal(t, 4, resp.Stats.Segments)
}

func TestAPIDiff_MsgPack(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{})

	var body bytes.Buffer
	enc := msgpack.NewEncoder(&body)
	enc.SetCustomStructTag("json")
	require.NoError(t, enc.Encode(diffRequest{Old: "hello", New: "hello"}))

	req := httptest.NewRequest("POST", "/api/diff", &body)
	req.Header.Set("Content-Type", wireformat.ContentTypeMsgPack)
	req.Header.Set("Accept", wireformat.ContentTypeMsgPack)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, wireformat.ContentTypeMsgPack, rec.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &resp))
	stats, ok := resp["stats"].(map[string]any)
	require.True(t, ok, "stats: %#v", resp["stats"])
	assert.EqualValues(t, 1, stats["segments"])
	assert.Equal(t, "equal", stats["strategy"])
}

func TestAPIDiff_Text(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{})
	rec := do(t, s.Handler(), "POST", "/api/diff", diffRequest{Old: "cat", New: "cot"}, "Accept", "text/plain")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "= \"c\"\n- \"a\"\n+ \"o\"\n= \"t\"\n", rec.Body.String())
}

func TestAPIDiff_BadBodies(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{MaxMessageBytes: 16})

	rec := do(t, s.Handler(), "POST", "/api/diff", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "empty request body")

	req := httptest.NewRequest("POST", "/api/diff", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s.Handler(), "POST", "/api/diff", diffRequest{Old: strings.Repeat("x", 64), New: "y"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAPI_MessageLifecycle(t *testing.T) {
	rules := msglog.DefaultRules()
	rules.ShowEditDiffs = true
	s := newTestServer(t, rules, Options{})
	h := s.Handler()

	rec := do(t, h, "POST", "/api/events", createEvent("m1", "cat"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = do(t, h, "POST", "/api/events", updateEvent("m1", "cot", 5))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var evResp eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evResp))
	require.NotNil(t, evResp.Notice)
	assert.Equal(t, "m1", evResp.Notice.MessageID)
	assert.Equal(t, "cat", evResp.Notice.Edit.Content)
	assert.Len(t, evResp.Notice.Segments, 4)

	rec = do(t, h, "GET", "/api/channels/c1/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []msglog.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "cot", msgs[0].Content)

	rec = do(t, h, "GET", "/api/channels/c1/messages/m1/edits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []msglog.EditView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "cat", views[0].Content)
	assert.NotEmpty(t, views[0].Segments)

	rec = do(t, h, "POST", "/api/channels/c1/messages/m1/diff-view", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"disabled":true}`, rec.Body.String())

	rec = do(t, h, "GET", "/api/channels/c1/messages/m1/edits", nil)
	var plain []msglog.EditView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plain))
	require.Len(t, plain, 1)
	assert.Empty(t, plain[0].Segments)

	rec = do(t, h, "DELETE", "/api/channels/c1/messages/m1/history", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, "GET", "/api/channels/c1/messages/m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m msglog.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Empty(t, m.EditHistory)
	assert.True(t, m.DiffViewDisabled)
}

func TestAPI_ClearChannel(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{})
	h := s.Handler()
	for _, ev := range []msglog.Event{
		createEvent("m1", "a"),
		createEvent("m2", "b"),
		updateEvent("m1", "a2", 3),
		{Type: msglog.EventMessageDelete, ChannelID: "c1", ID: "m2"},
	} {
		require.Equal(t, http.StatusOK, do(t, h, "POST", "/api/events", ev).Code)
	}

	rec := do(t, h, "DELETE", "/api/channels/c1/log", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":2}`, rec.Body.String())

	rec = do(t, h, "GET", "/api/channels/c1/messages/m2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Errors(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{})
	h := s.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown message", "GET", "/api/channels/c1/messages/nope", nil, http.StatusNotFound},
		{"edits of unknown message", "GET", "/api/channels/c1/messages/nope/edits", nil, http.StatusNotFound},
		{"toggle unknown message", "POST", "/api/channels/c1/messages/nope/diff-view", nil, http.StatusNotFound},
		{"history of unknown message", "DELETE", "/api/channels/c1/messages/nope/history", nil, http.StatusNotFound},
		{"unknown event", "POST", "/api/events", msglog.Event{Type: "TYPING_START"}, http.StatusBadRequest},
		{"invalid event", "POST", "/api/events", msglog.Event{Type: msglog.EventMessageDelete}, http.StatusBadRequest},
		{"wrong method", "GET", "/api/diff", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// An error reply means the server's read loop, and so its hub registration, is running.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	f := readFrame(t, conn)
	require.Equal(t, frameError, f.Type)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocket_BroadcastsEdits(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	sender := dialWS(t, srv)
	watcher := dialWS(t, srv)

	require.NoError(t, sender.WriteJSON(createEvent("m1", "hi")))
	require.NoError(t, sender.WriteJSON(updateEvent("m1", "hi!", 2)))

	for _, conn := range []*websocket.Conn{watcher, sender} {
		f := readFrame(t, conn)
		assert.Equal(t, frameEdit, f.Type)
		require.NotNil(t, f.Notice)
		assert.Equal(t, "hi", f.Notice.Edit.Content)
		assert.Equal(t, "hi!", f.Notice.Content)
	}

	// HTTP events are broadcast too.
	rec := do(t, s.Handler(), "POST", "/api/events", updateEvent("m1", "hi!!", 4))
	require.Equal(t, http.StatusOK, rec.Code)
	f := readFrame(t, watcher)
	assert.Equal(t, "hi!", f.Notice.Edit.Content)
}

func TestWebSocket_ErrorsGoToSender(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	sender := dialWS(t, srv)
	watcher := dialWS(t, srv)

	require.NoError(t, sender.WriteJSON(msglog.Event{Type: "BOGUS"}))
	f := readFrame(t, sender)
	assert.Equal(t, frameError, f.Type)
	assert.Contains(t, f.Error, "unknown event type")

	// The watcher sees the next broadcast, not the error.
	require.NoError(t, sender.WriteJSON(createEvent("m1", "a")))
	require.NoError(t, sender.WriteJSON(updateEvent("m1", "b", 1)))
	f = readFrame(t, watcher)
	assert.Equal(t, frameEdit, f.Type)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, msglog.DefaultRules(), Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	resp, err := http.Get(url + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("x")))
	readFrame(t, conn)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err: %v", err)
}

func TestClientSend_ClosedConnection(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer srv.Close()

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer peer.Close()

	var conn *websocket.Conn
	select {
	case conn = <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("no server connection")
	}
	c := &client{conn: conn}
	h := newHub(slog.New(slog.DiscardHandler))
	require.True(t, h.add(c))

	require.NoError(t, conn.Close())
	assert.Error(t, c.send(frame{Type: frameError, Error: "x"}))

	h.broadcast(frame{Type: frameError, Error: "x"})
	assert.Empty(t, h.snapshot())
}
