package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluk-w/webtail/internal/broadcast"
	"github.com/gluk-w/webtail/internal/message"
	"github.com/gluk-w/webtail/internal/sse"
	"github.com/gluk-w/webtail/internal/supervisor"
)

func setupAPI(t *testing.T) (*API, *httptest.Server) {
	t.Helper()
	registry := broadcast.NewRegistry(16)
	sup := supervisor.New(registry, supervisor.Options{
		PingInterval:   time.Second,
		SubscriberPoll: 10 * time.Millisecond,
		DrainTimeout:   20 * time.Millisecond,
	}, nil)
	api := New(registry, sup, sse.NewGateway(registry, nil), nil)

	srv := httptest.NewServer(NewRouter(api, RouterOptions{
		RelayPath:      "/ws",
		FrontendOrigin: "http://localhost:5173",
		Frontend:       fstest.MapFS{"index.html": {Data: []byte("<html></html>")}},
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func getJSON(t *testing.T, rawURL string, v any) int {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func sseURL(base string, id message.Identity) string {
	return base + "/api/sse?application=" + url.QueryEscape(id.String())
}

func TestHello(t *testing.T) {
	_, srv := setupAPI(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/hello", &body))
	assert.NotEmpty(t, body["message"])
}

func TestApplicationsAndHealth(t *testing.T) {
	api, srv := setupAPI(t)

	var ids []message.Identity
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/applications", &ids))
	assert.Empty(t, ids)

	api.Registry.Register(message.NewSinglePod("zeta"))
	api.Registry.Register(message.NewSinglePod("alpha"))

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/applications", &ids))
	assert.Equal(t, []message.Identity{message.NewSinglePod("alpha"), message.NewSinglePod("zeta")}, ids)

	var health map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &health))
	assert.Equal(t, float64(2), health["applications"])
}

func TestStreamBadRequests(t *testing.T) {
	_, srv := setupAPI(t)

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"missing", srv.URL + "/api/sse", http.StatusBadRequest},
		{"malformed", srv.URL + "/api/sse?application=" + url.QueryEscape("{nope"), http.StatusBadRequest},
		{"unregistered", sseURL(srv.URL, message.NewSinglePod("ghost")), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, tt.want, getJSON(t, tt.url, &body))
			assert.NotEmpty(t, body["detail"])
		})
	}
}

func TestRelayRejectsBadHandshake(t *testing.T) {
	api, _ := setupAPI(t)

	w := httptest.NewRecorder()
	api.Relay(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set(supervisor.HeaderApplication, `{"SinglePod": 12}`)
	w = httptest.NewRecorder()
	api.Relay(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	assert.Zero(t, api.Registry.Len(), "rejected handshakes never register")
}

func TestMetricsAndSPA(t *testing.T) {
	_, srv := setupAPI(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/apps/billing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, err = http.Get(srv.URL + "/api/nothing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// relayClient is a websocket producer that keeps reading so pings are
// answered, delivering server text frames on signals.
type relayClient struct {
	conn    *websocket.Conn
	signals chan message.Envelope
}

func dialRelay(t *testing.T, base string, id message.Identity) *relayClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(base, "http")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{supervisor.HeaderApplication: []string{id.String()}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	c := &relayClient{conn: conn, signals: make(chan message.Envelope, 16)}
	go func() {
		defer close(c.signals)
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			if env, err := message.DecodeJSON(data); err == nil {
				c.signals <- env
			}
		}
	}()
	return c
}

func (c *relayClient) expect(t *testing.T, sig message.Signal) message.Envelope {
	t.Helper()
	select {
	case env := <-c.signals:
		require.True(t, env.IsSignal(sig), "want %s, got %+v", sig, env)
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", sig)
		return message.Envelope{}
	}
}

func TestRelayToStreamEndToEnd(t *testing.T) {
	api, srv := setupAPI(t)
	id := message.NewSinglePod("billing")

	client := dialRelay(t, srv.URL, id)
	client.expect(t, message.Start)
	client.expect(t, message.Pause)

	resp, err := http.Get(sseURL(srv.URL, id))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	client.expect(t, message.Resume)

	b, err := message.EncodeBinary(message.NewRecord("hello viewers", id, false))
	require.NoError(t, err)
	require.NoError(t, client.conn.Write(context.Background(), websocket.MessageBinary, b))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), line)

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &event))
	assert.Equal(t, "hello viewers", event["row"])
	assert.Equal(t, "Data", event["type"])

	client.conn.Close(websocket.StatusNormalClosure, "")

	// the disconnect sentinel ends the stream
	rest := make(chan error, 1)
	go func() {
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				rest <- err
				return
			}
		}
	}()
	select {
	case <-rest:
	case <-time.After(3 * time.Second):
		t.Fatal("event stream did not end after producer left")
	}

	require.Eventually(t, func() bool { return api.Registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
