package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gluk-w/webtail/internal/broadcast"
	"github.com/gluk-w/webtail/internal/message"
	"github.com/gluk-w/webtail/internal/metrics"
)

// Conn is the part of a websocket connection a session needs.
// *websocket.Conn satisfies it.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
}

// ErrSuperseded ends a session whose identity was registered again by a
// newer session.
var ErrSuperseded = errors.New("superseded by a newer session")

// Options tunes the session timers.
type Options struct {
	// PingInterval is the liveness period. A ping that is not answered
	// within one interval fails the session.
	PingInterval time.Duration
	// SubscriberPoll is how often a paused session checks for viewers.
	SubscriberPoll time.Duration
	// DrainTimeout is the quiet period that ends the drain before Resume.
	DrainTimeout time.Duration
}

// DefaultOptions returns the production timers.
func DefaultOptions() Options {
	return Options{
		PingInterval:   time.Second,
		SubscriberPoll: time.Second,
		DrainTimeout:   50 * time.Millisecond,
	}
}

// Supervisor serves relay sessions against a registry.
type Supervisor struct {
	registry *broadcast.Registry
	opts     Options
	logger   *zap.SugaredLogger
}

// New returns a supervisor. Zero option fields take their defaults.
func New(registry *broadcast.Registry, opts Options, logger *zap.SugaredLogger) *Supervisor {
	def := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.SubscriberPoll <= 0 {
		opts.SubscriberPoll = def.SubscriberPoll
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = def.DrainTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Supervisor{registry: registry, opts: opts, logger: logger}
}

type frame struct {
	typ  websocket.MessageType
	data []byte
}

type session struct {
	conn   Conn
	ch     *broadcast.Channel
	id     message.Identity
	opts   Options
	logger *zap.SugaredLogger

	frames  chan frame
	readErr error
}

// Serve registers requested, replacing any earlier channel for it, and
// runs the session until the peer goes away or ctx ends. The registry
// entry is released and subscribers are disconnected before Serve returns.
// A normal close by the peer returns nil; a session replaced by a newer
// registration of the same identity returns ErrSuperseded.
func (s *Supervisor) Serve(ctx context.Context, conn Conn, requested message.Identity) error {
	ch := s.registry.Register(requested)
	id := ch.Identity()
	sess := &session{
		conn:   conn,
		ch:     ch,
		id:     id,
		opts:   s.opts,
		logger: s.logger.With("session", uuid.NewString(), "application", id.String()),
		frames: make(chan frame),
	}

	metrics.RelaySessions.Inc()
	defer metrics.RelaySessions.Dec()
	defer func() {
		ch.Close()
		s.registry.Release(id, ch)
		sess.logger.Infow("session closed")
	}()

	sess.logger.Infow("session registered", "requested", requested.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sess.send(ctx, message.Start); err != nil {
		return fmt.Errorf("send start: %w", err)
	}

	go sess.readLoop(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return sess.messageLoop(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return sess.livenessLoop(gctx)
	})
	return quiet(g.Wait())
}

// quiet folds the ways a session normally ends into nil.
func quiet(err error) error {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		return nil
	}
	return err
}

func (s *session) send(ctx context.Context, sig message.Signal) error {
	b, err := message.EncodeJSON(message.NewControl(s.id, sig))
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, b)
}

// readLoop is the only reader of conn. It keeps reading while the session
// is paused so pongs are still processed.
func (s *session) readLoop(ctx context.Context) {
	defer close(s.frames)
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			s.readErr = err
			return
		}
		select {
		case s.frames <- frame{typ: typ, data: data}:
		case <-ctx.Done():
			s.readErr = ctx.Err()
			return
		}
	}
}

func (s *session) messageLoop(ctx context.Context) error {
	poll := time.NewTicker(s.opts.SubscriberPoll)
	defer poll.Stop()

	for {
		if s.ch.ReceiverCount() == 0 {
			if err := s.pause(ctx); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ch.Done():
			return ErrSuperseded
		case f, ok := <-s.frames:
			if !ok {
				return s.readErr
			}
			s.republish(f)
		case <-poll.C:
		}
	}
}

// pause tells the peer to stop, discards frames until a subscriber shows
// up, drains whatever is still in flight and then resumes the peer.
func (s *session) pause(ctx context.Context) error {
	if err := s.send(ctx, message.Pause); err != nil {
		return fmt.Errorf("send pause: %w", err)
	}
	s.logger.Debugw("no subscribers, paused")

	poll := time.NewTicker(s.opts.SubscriberPoll)
	defer poll.Stop()
wait:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ch.Done():
			return ErrSuperseded
		case _, ok := <-s.frames:
			if !ok {
				return s.readErr
			}
			metrics.FramesDiscarded.WithLabelValues("paused").Inc()
		case <-poll.C:
			if s.ch.ReceiverCount() > 0 {
				break wait
			}
		}
	}

	if err := s.drain(ctx); err != nil {
		return err
	}
	if err := s.send(ctx, message.Resume); err != nil {
		return fmt.Errorf("send resume: %w", err)
	}
	s.logger.Debugw("subscriber present, resumed")
	return nil
}

// drain discards frames until none arrives for a full DrainTimeout.
func (s *session) drain(ctx context.Context) error {
	timer := time.NewTimer(s.opts.DrainTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ch.Done():
			return ErrSuperseded
		case _, ok := <-s.frames:
			if !ok {
				return s.readErr
			}
			metrics.FramesDiscarded.WithLabelValues("drained").Inc()
			timer.Reset(s.opts.DrainTimeout)
		case <-timer.C:
			return nil
		}
	}
}

func (s *session) republish(f frame) {
	var (
		env message.Envelope
		err error
	)
	switch f.typ {
	case websocket.MessageText:
		env, err = message.DecodeJSON(f.data)
	default:
		env, err = message.DecodeBinary(f.data)
	}
	if err != nil {
		metrics.FramesDiscarded.WithLabelValues("malformed").Inc()
		s.logger.Warnw("dropping malformed frame", "error", err)
		return
	}

	metrics.FramesReceived.WithLabelValues(env.Kind.String()).Inc()
	s.ch.Publish(env.WithIdentity(s.id))
}

func (s *session) livenessLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, s.opts.PingInterval)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Infow("peer stopped answering pings", "error", err)
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
