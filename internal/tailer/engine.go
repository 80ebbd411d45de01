package tailer

import (
	"context"
	"errors"
	"io"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/gluk-w/webtail/internal/message"
)

// Defaults for the engine's fixed delays. Tests may shorten them per engine.
const (
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultRetryInterval = 2 * time.Second
)

// Engine tails the newest file matching Pattern inside Dir and publishes
// envelopes for Identity.
type Engine struct {
	Dir      string
	Pattern  *regexp.Regexp
	Identity message.Identity

	// PollInterval is the wait after an empty read and between directory
	// scans while looking for a replacement file.
	PollInterval time.Duration
	// RetryInterval is the wait between scans before the first file is found.
	RetryInterval time.Duration

	logger *zap.SugaredLogger
}

// New returns an engine with the default delays.
func New(dir string, pattern *regexp.Regexp, id message.Identity, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		Dir:           dir,
		Pattern:       pattern,
		Identity:      id,
		PollInterval:  DefaultPollInterval,
		RetryInterval: DefaultRetryInterval,
		logger:        logger,
	}
}

// Run tails until ctx is cancelled, sending envelopes to out in file order.
// It only returns ctx's error; I/O faults are logged and retried.
func (e *Engine) Run(ctx context.Context, out chan<- message.Envelope) error {
	cur, err := e.discover(ctx, e.RetryInterval, nil, time.Time{})
	if err != nil {
		return err
	}
	defer func() {
		if cur != nil {
			cur.close()
		}
	}()

	if !e.emit(ctx, out, message.NewControl(e.Identity, message.FileFound)) {
		return ctx.Err()
	}
	if err := cur.seekEnd(); err != nil {
		e.logger.Errorf("%v; reading from the current position", err)
	}
	if !e.emit(ctx, out, message.NewControl(e.Identity, message.TailingStarted)) {
		return ctx.Err()
	}
	e.logger.Infof("tailing %s", cur.Path)

	asm := newAssembler(e.Identity)

	for {
		chunk, err := cur.readChunk()
		if chunk != "" {
			for _, env := range asm.feed(chunk) {
				if !e.emit(ctx, out, env) {
					return ctx.Err()
				}
			}
		}

		var ch change
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			// A partial line is shown once the reader has caught up with
			// the writer, so the record its continuation replaces is always
			// the partial itself.
			if env, ok := asm.flush(); ok && !e.emit(ctx, out, env) {
				return ctx.Err()
			}
			if chunk != "" {
				continue
			}
			if !sleep(ctx, e.PollInterval) {
				return ctx.Err()
			}
			ch, err = cur.check()
			if err != nil {
				e.logger.Warnf("checking %s: %v", cur.Path, err)
			}
		default:
			e.logger.Errorf("reading %s: %v", cur.Path, err)
			ch = removed
		}

		if ch == unchanged {
			continue
		}

		e.logger.Infof("file %s %s", cur.Path, ch)
		if !e.emit(ctx, out, message.NewControl(e.Identity, message.FileRemoved)) {
			return ctx.Err()
		}
		asm.reset()

		var exclude *fileStamp
		var notBefore time.Time
		if ch != truncated {
			stamp := cur.stamp
			exclude = &stamp
			notBefore = cur.lastModified()
		}
		// The abandoned handle stays open during the scan so its inode
		// cannot be reused by the replacement file.
		next, err := e.discover(ctx, e.PollInterval, exclude, notBefore)
		cur.close()
		if err != nil {
			return err
		}
		cur = next
		if !e.emit(ctx, out, message.NewControl(e.Identity, message.NewFileFound)) {
			return ctx.Err()
		}
		e.logger.Infof("tailing %s from the start", cur.Path)
	}
}

// discover scans the directory every interval until a file is found.
func (e *Engine) discover(ctx context.Context, interval time.Duration, exclude *fileStamp, notBefore time.Time) (*Cursor, error) {
	waiting := false
	for {
		cur, err := findCursor(e.Dir, e.Pattern, exclude, notBefore)
		if err == nil {
			e.logger.Infof("found %s", cur.Path)
			return cur, nil
		}
		if errors.Is(err, ErrNoMatch) {
			if !waiting {
				e.logger.Infof("no file matching %q in %s, waiting", e.Pattern, e.Dir)
				waiting = true
			}
		} else {
			e.logger.Errorf("discovery: %v", err)
		}
		if !sleep(ctx, interval) {
			return nil, ctx.Err()
		}
	}
}

func (e *Engine) emit(ctx context.Context, out chan<- message.Envelope, env message.Envelope) bool {
	select {
	case out <- env:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
