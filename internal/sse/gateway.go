package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/gluk-w/webtail/internal/broadcast"
	"github.com/gluk-w/webtail/internal/message"
	"github.com/gluk-w/webtail/internal/metrics"
)

// ErrLagged ends a stream whose subscriber fell too far behind.
var ErrLagged = errors.New("subscriber lagged behind")

// Gateway opens event streams on a registry.
type Gateway struct {
	registry *broadcast.Registry
	logger   *zap.SugaredLogger
}

func NewGateway(registry *broadcast.Registry, logger *zap.SugaredLogger) *Gateway {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gateway{registry: registry, logger: logger}
}

// Open subscribes to id. It fails with broadcast.ErrNotRegistered when no
// producer is connected; it does not wait for one.
func (g *Gateway) Open(id message.Identity) (*Stream, error) {
	sub, err := g.registry.Subscribe(id)
	if err != nil {
		return nil, err
	}
	return &Stream{id: id, sub: sub, logger: g.logger.With("application", id.String())}, nil
}

// Stream is a lazy sequence of event payloads for one viewer.
type Stream struct {
	id     message.Identity
	sub    *broadcast.Subscription
	logger *zap.SugaredLogger
}

// Next blocks for the next event payload. It returns io.EOF once the
// producer disconnects and ErrLagged if the subscriber was dropped.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case env, ok := <-s.sub.C():
		if !ok {
			if s.sub.Lagged() {
				return nil, ErrLagged
			}
			return nil, io.EOF
		}
		return payload(env)
	}
}

func payload(env message.Envelope) ([]byte, error) {
	switch env.Kind {
	case message.KindRecord:
		return json.Marshal(env.Record)
	case message.KindControl:
		return json.Marshal(env.Control)
	case message.KindDisconnect:
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: %d", message.ErrUnknownKind, env.Kind)
	}
}

// Close detaches the stream from its channel.
func (s *Stream) Close() {
	s.sub.Close()
}

// Serve writes the stream to w as text/event-stream until it ends or the
// request goes away. A payload that cannot be encoded produces one inline
// error event and ends the stream.
func (s *Stream) Serve(ctx context.Context, w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	for {
		data, err := s.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, ErrLagged):
			s.logger.Infow("viewer dropped for lagging")
			return err
		default:
			s.logger.Errorw("cannot encode event", "error", err)
			fmt.Fprintf(w, "data: Error: %v\n\n", err)
			flusher.Flush()
			return err
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
	}
}
