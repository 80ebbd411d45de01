package tailer

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gluk-w/webtail/internal/message"
)

var testID = message.NewSinglePod("tail-test")

func startEngine(t *testing.T, dir, pattern string) <-chan message.Envelope {
	t.Helper()
	e := New(dir, regexp.MustCompile(pattern), testID, nil)
	e.PollInterval = 10 * time.Millisecond
	e.RetryInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan message.Envelope, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx, out)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return out
}

func next(t *testing.T, out <-chan message.Envelope) message.Envelope {
	t.Helper()
	select {
	case env := <-out:
		return env
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for an envelope")
		return message.Envelope{}
	}
}

func expectSignal(t *testing.T, out <-chan message.Envelope, sig message.Signal) {
	t.Helper()
	env := next(t, out)
	require.True(t, env.IsSignal(sig), "want %s, got %s %+v", sig, env.Kind, env)
	assert.Equal(t, testID, env.Identity())
}

func expectRecord(t *testing.T, out <-chan message.Envelope, text string, replace bool) {
	t.Helper()
	env := next(t, out)
	require.Equal(t, message.KindRecord, env.Kind, "got %+v", env)
	assert.Equal(t, text, env.Record.Text)
	assert.Equal(t, replace, env.Record.ReplaceLastRow)
	assert.Equal(t, testID, env.Record.Identity)
}

func expectQuiet(t *testing.T, out <-chan message.Envelope, d time.Duration) {
	t.Helper()
	select {
	case env := <-out:
		t.Fatalf("unexpected envelope %s %+v", env.Kind, env)
	case <-time.After(d):
	}
}

func appendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestEngineSkipsExistingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, "written before attach\nand a partial")

	out := startEngine(t, dir, `^app\.log$`)
	expectSignal(t, out, message.FileFound)
	expectSignal(t, out, message.TailingStarted)

	appendTo(t, path, "written after attach\n")
	expectRecord(t, out, "written after attach", false)
	expectQuiet(t, out, 100*time.Millisecond)
}

func TestEngineRendersStalePartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, "")

	out := startEngine(t, dir, `^app\.log$`)
	expectSignal(t, out, message.FileFound)
	expectSignal(t, out, message.TailingStarted)

	appendTo(t, path, "progress: 10%")
	expectRecord(t, out, "progress: 10%", false)

	appendTo(t, path, " done\n")
	expectRecord(t, out, "progress: 10% done", true)
}

func TestEngineContinuationOnlyReplacesItsPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, "")

	out := startEngine(t, dir, `^app\.log$`)
	expectSignal(t, out, message.FileFound)
	expectSignal(t, out, message.TailingStarted)

	appendTo(t, path, "line1\n")
	appendTo(t, path, "foo")
	appendTo(t, path, "bar\n")
	expectRecord(t, out, "line1", false)

	// Depending on timing the reader sees "foo" on its own or the whole
	// line at once. Either way line1 is never replaced.
	env := next(t, out)
	require.Equal(t, message.KindRecord, env.Kind, "got %+v", env)
	if env.Record.Text == "foo" {
		assert.False(t, env.Record.ReplaceLastRow)
		expectRecord(t, out, "foobar", true)
	} else {
		assert.Equal(t, "foobar", env.Record.Text)
		assert.False(t, env.Record.ReplaceLastRow)
	}
	expectQuiet(t, out, 100*time.Millisecond)
}

func TestEngineDetectsReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, "old content\n")

	out := startEngine(t, dir, `^app\.log$`)
	expectSignal(t, out, message.FileFound)
	expectSignal(t, out, message.TailingStarted)

	// Same name, different underlying file; the old path never disappears.
	tmp := filepath.Join(dir, "staging.tmp")
	appendTo(t, tmp, "fresh start\nsecond line\n")
	require.NoError(t, os.Rename(tmp, path))

	expectSignal(t, out, message.FileRemoved)
	expectSignal(t, out, message.NewFileFound)
	expectRecord(t, out, "fresh start", false)
	expectRecord(t, out, "second line", false)
	expectQuiet(t, out, 100*time.Millisecond)
}

func TestEngineFollowsRemovalAndRecreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, "")

	out := startEngine(t, dir, `^app\.log`)
	expectSignal(t, out, message.FileFound)
	expectSignal(t, out, message.TailingStarted)

	appendTo(t, path, "before rotation\n")
	expectRecord(t, out, "before rotation", false)

	require.NoError(t, os.Rename(path, path+".1"))
	expectSignal(t, out, message.FileRemoved)
	expectQuiet(t, out, 100*time.Millisecond)

	appendTo(t, path, "after rotation\n")
	expectSignal(t, out, message.NewFileFound)
	expectRecord(t, out, "after rotation", false)
}

func TestEngineHandlesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, "")

	out := startEngine(t, dir, `^app\.log$`)
	expectSignal(t, out, message.FileFound)
	expectSignal(t, out, message.TailingStarted)

	appendTo(t, path, "one\ntwo\n")
	expectRecord(t, out, "one", false)
	expectRecord(t, out, "two", false)

	require.NoError(t, os.Truncate(path, 0))
	expectSignal(t, out, message.FileRemoved)
	expectSignal(t, out, message.NewFileFound)

	appendTo(t, path, "three\n")
	expectRecord(t, out, "three", false)
}

func TestEngineWaitsForFirstFile(t *testing.T) {
	dir := t.TempDir()
	out := startEngine(t, dir, `\.log$`)

	expectQuiet(t, out, 50*time.Millisecond)

	path := filepath.Join(dir, "late.log")
	appendTo(t, path, "")
	expectSignal(t, out, message.FileFound)
	expectSignal(t, out, message.TailingStarted)

	appendTo(t, path, "hello\n")
	expectRecord(t, out, "hello", false)
}

func TestEngineStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, regexp.MustCompile(`x`), testID, nil)
	e.RetryInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx, make(chan message.Envelope)) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestFindCursorTieBreak(t *testing.T) {
	dir := t.TempDir()
	pattern := regexp.MustCompile(`\.log$`)
	base := time.Now().Add(-time.Hour)

	for name, mod := range map[string]time.Time{
		"a.log": base.Add(2 * time.Minute),
		"b.log": base.Add(time.Minute),
		"c.log": base,
		"z.txt": base.Add(time.Hour),
	} {
		p := filepath.Join(dir, name)
		appendTo(t, p, name)
		require.NoError(t, os.Chtimes(p, mod, mod))
	}

	cur, err := findCursor(dir, pattern, nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.log"), cur.Path)
	cur.close()

	require.NoError(t, os.Chtimes(filepath.Join(dir, "c.log"), base.Add(2*time.Minute), base.Add(2*time.Minute)))
	cur, err = findCursor(dir, pattern, nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "c.log"), cur.Path, "equal mtimes go to the greatest name")

	excluded := cur.stamp
	cur.close()
	cur, err = findCursor(dir, pattern, &excluded, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.log"), cur.Path)
	cur.close()

	_, err = findCursor(dir, regexp.MustCompile(`\.gz$`), nil, time.Time{})
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = findCursor(filepath.Join(dir, "missing"), pattern, nil, time.Time{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
}
