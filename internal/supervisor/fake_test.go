package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/gluk-w/webtail/internal/message"
)

type fakeFrame struct {
	typ  websocket.MessageType
	data []byte
}

// fakeConn is an in-memory peer. Frames pushed with send are returned by
// Read; everything the session writes shows up on out.
type fakeConn struct {
	in      chan fakeFrame
	out     chan message.Envelope
	closed  chan struct{}
	pingErr atomic.Value
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan fakeFrame),
		out:    make(chan message.Envelope, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case f := <-c.in:
		return f.typ, f.data, nil
	case <-c.closed:
		return 0, nil, websocket.CloseError{Code: websocket.StatusNormalClosure}
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	if typ != websocket.MessageText {
		return errors.New("server must only write text frames")
	}
	env, err := message.DecodeJSON(p)
	if err != nil {
		return err
	}
	c.out <- env
	return nil
}

func (c *fakeConn) Ping(ctx context.Context) error {
	if err, ok := c.pingErr.Load().(error); ok {
		return err
	}
	return nil
}

func (c *fakeConn) failPings() {
	c.pingErr.Store(errors.New("pong timeout"))
}

func (c *fakeConn) hangUp() {
	close(c.closed)
}

func (c *fakeConn) sendBinary(t *testing.T, env message.Envelope) {
	t.Helper()
	b, err := message.EncodeBinary(env)
	require.NoError(t, err)
	c.push(t, fakeFrame{typ: websocket.MessageBinary, data: b})
}

func (c *fakeConn) sendJSON(t *testing.T, env message.Envelope) {
	t.Helper()
	b, err := message.EncodeJSON(env)
	require.NoError(t, err)
	c.push(t, fakeFrame{typ: websocket.MessageText, data: b})
}

func (c *fakeConn) push(t *testing.T, f fakeFrame) {
	t.Helper()
	select {
	case c.in <- f:
	case <-time.After(2 * time.Second):
		t.Fatal("session stopped reading")
	}
}

// expectSignal waits for the next control signal written to the peer.
func (c *fakeConn) expectSignal(t *testing.T, sig message.Signal) message.Envelope {
	t.Helper()
	select {
	case env := <-c.out:
		require.True(t, env.IsSignal(sig), "want %s, got %+v", sig, env)
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", sig)
		return message.Envelope{}
	}
}
