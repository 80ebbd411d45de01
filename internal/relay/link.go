package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/gluk-w/webtail/internal/config"
	"github.com/gluk-w/webtail/internal/message"
	"github.com/gluk-w/webtail/internal/metrics"
	"github.com/gluk-w/webtail/internal/supervisor"
	"github.com/gluk-w/webtail/internal/tailer"
)

// Timing defaults. Tests may shorten them per link.
const (
	DefaultCooldown     = 20 * time.Second
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Producer fills a session queue until ctx ends. tailer.Engine.Run is the
// production producer.
type Producer func(ctx context.Context, out chan<- message.Envelope) error

// ErrStopped is returned by a session the server ended with Stop.
var ErrStopped = errors.New("stopped by server")

// Link relays one log source to the server.
type Link struct {
	URL      string
	Identity message.Identity
	Buffer   int
	Produce  Producer

	Cooldown     time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration

	logger *zap.SugaredLogger
}

// NewLink builds a link that tails src with a fresh engine per session.
func NewLink(src config.Source, logger *zap.SugaredLogger) *Link {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.With("application", src.AppName.String())
	engineLog := logger.Named("tailer")

	return &Link{
		URL:      src.URL(),
		Identity: src.AppName,
		Buffer:   src.ChannelBuffer,
		Produce: func(ctx context.Context, out chan<- message.Envelope) error {
			return tailer.New(src.LogFileDir, src.Pattern(), src.AppName, engineLog).Run(ctx, out)
		},
		Cooldown:     DefaultCooldown,
		DialTimeout:  DefaultDialTimeout,
		WriteTimeout: DefaultWriteTimeout,
		logger:       logger,
	}
}

func (l *Link) log() *zap.SugaredLogger {
	if l.logger == nil {
		return zap.NewNop().Sugar()
	}
	return l.logger
}

// Run keeps a session open until ctx ends, sleeping Cooldown between
// attempts. It only returns ctx's error.
func (l *Link) Run(ctx context.Context) error {
	for {
		err := l.Session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case err == nil:
			metrics.ClientReconnects.WithLabelValues("closed").Inc()
			l.log().Infow("session closed by server", "retry_in", l.Cooldown)
		case errors.Is(err, ErrStopped):
			metrics.ClientReconnects.WithLabelValues("stopped").Inc()
			l.log().Infow("session stopped by server", "retry_in", l.Cooldown)
		default:
			metrics.ClientReconnects.WithLabelValues("failed").Inc()
			l.log().Warnw("session failed", "error", err, "retry_in", l.Cooldown)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.Cooldown):
		}
	}
}

// Session dials the server and runs one session until the server stops
// it, the connection fails, or ctx ends. Both halves have finished and the
// producer has returned when Session returns.
func (l *Link) Session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, l.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, l.URL, &websocket.DialOptions{
		HTTPHeader: http.Header{supervisor.HeaderApplication: []string{l.Identity.String()}},
	})
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.URL, err)
	}
	defer conn.CloseNow()

	metrics.ClientReconnects.WithLabelValues("connected").Inc()
	l.log().Infow("connected", "url", l.URL)

	buffer := l.Buffer
	if buffer <= 0 {
		buffer = config.DefaultChannelBuffer
	}
	queue := make(chan message.Envelope, buffer)

	prodCtx, stopProducer := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := l.Produce(prodCtx, queue); err != nil && !errors.Is(err, context.Canceled) {
			l.log().Warnw("producer ended", "error", err)
		}
	}()
	defer func() {
		stopProducer()
		wg.Wait()
	}()

	recvDone, sendDone := newAbort(), newAbort()

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	go func() {
		select {
		case <-sendDone.done():
			stopReading()
		case <-readCtx.Done():
		}
	}()

	var recvErr, sendErr error
	var halves sync.WaitGroup
	halves.Add(2)
	go func() {
		defer halves.Done()
		defer recvDone.fire()
		recvErr = l.receive(readCtx, conn, queue, sendDone)
	}()
	go func() {
		defer halves.Done()
		defer sendDone.fire()
		sendErr = l.send(ctx, conn, queue, recvDone)
	}()
	halves.Wait()

	if sendErr != nil {
		return sendErr
	}
	return recvErr
}

// receive injects server control frames into queue until the connection
// closes or the sender aborts.
func (l *Link) receive(ctx context.Context, conn *websocket.Conn, queue chan<- message.Envelope, sendDone *abort) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-sendDone.done():
				return nil
			default:
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if typ != websocket.MessageText {
			l.log().Debugw("ignoring binary frame from server", "bytes", len(data))
			continue
		}

		env, err := message.DecodeJSON(data)
		if err != nil {
			l.log().Warnw("ignoring malformed server frame", "error", err)
			continue
		}

		select {
		case queue <- env:
		case <-sendDone.done():
			return nil
		}
	}
}

// send drains queue through the gate until Stop, a write failure, or the
// receiver aborts. A write in flight is given WriteTimeout to finish.
func (l *Link) send(ctx context.Context, conn *websocket.Conn, queue <-chan message.Envelope, recvDone *abort) error {
	gate := NewGate()
	for {
		var env message.Envelope
		select {
		case <-recvDone.done():
			return nil
		case <-ctx.Done():
			return nil
		case env = <-queue:
		}

		switch gate.Apply(env) {
		case Control:
			metrics.ClientEnvelopes.WithLabelValues("control").Inc()
			l.log().Debugw("gate changed", "signal", env.Control.Signal.String(), "state", gate.State().String())
			continue
		case Stop:
			return ErrStopped
		case Drop:
			metrics.ClientEnvelopes.WithLabelValues("dropped").Inc()
			continue
		}

		b, err := message.EncodeBinary(env)
		if err != nil {
			l.log().Errorw("cannot encode envelope", "error", err)
			continue
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.WriteTimeout)
		err = conn.Write(wctx, websocket.MessageBinary, b)
		cancel()
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		metrics.ClientEnvelopes.WithLabelValues("sent").Inc()
	}
}
