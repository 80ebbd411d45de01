package tailer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// ErrNoMatch is returned when no file in the directory matches the pattern.
var ErrNoMatch = errors.New("no matching file")

// Cursor is the read position and replacement-detection state for one
// watched file.
type Cursor struct {
	Path    string
	Dir     string
	Pattern *regexp.Regexp

	file   *os.File
	reader *bufio.Reader
	stamp  fileStamp
	offset int64
}

type candidate struct {
	name    string
	modTime time.Time
}

// findCursor opens the matching file in dir with the newest modification
// time; ties go to the lexicographically greatest name. Files stamped like
// exclude or last modified before notBefore are skipped, which keeps a
// rotated-away file from being picked up again.
func findCursor(dir string, pattern *regexp.Regexp, exclude *fileStamp, notBefore time.Time) (*Cursor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !pattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		if !info.Mode().IsRegular() && info.Mode()&fs.ModeSymlink == 0 {
			continue
		}
		if info.ModTime().Before(notBefore) {
			continue
		}
		candidates = append(candidates, candidate{name: entry.Name(), modTime: info.ModTime()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].modTime.After(candidates[j].modTime)
		}
		return candidates[i].name > candidates[j].name
	})

	for _, c := range candidates {
		path := filepath.Join(dir, c.name)
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		stamp, err := stampOf(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		if exclude != nil && stamp.same(*exclude) {
			f.Close()
			continue
		}
		return &Cursor{
			Path:    path,
			Dir:     dir,
			Pattern: pattern,
			file:    f,
			reader:  bufio.NewReader(f),
			stamp:   stamp,
		}, nil
	}
	return nil, ErrNoMatch
}

// seekEnd moves the cursor past everything already in the file.
func (c *Cursor) seekEnd() error {
	off, err := c.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek %s: %w", c.Path, err)
	}
	c.offset = off
	c.reader.Reset(c.file)
	return nil
}

// readChunk returns the next line including its newline, or the partial
// tail of the file with io.EOF.
func (c *Cursor) readChunk() (string, error) {
	chunk, err := c.reader.ReadString('\n')
	c.offset += int64(len(chunk))
	return chunk, err
}

type change int

const (
	unchanged change = iota
	removed
	replaced
	truncated
)

func (ch change) String() string {
	switch ch {
	case removed:
		return "removed"
	case replaced:
		return "replaced"
	case truncated:
		return "truncated"
	default:
		return "unchanged"
	}
}

// check re-resolves the path by name and compares it with the open file.
func (c *Cursor) check() (change, error) {
	info, err := os.Stat(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return removed, nil
		}
		return removed, fmt.Errorf("stat %s: %w", c.Path, err)
	}

	f, err := os.Open(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return removed, nil
		}
		return removed, fmt.Errorf("open %s: %w", c.Path, err)
	}
	stamp, err := stampOf(f)
	f.Close()
	if err != nil {
		return removed, err
	}

	if !stamp.same(c.stamp) {
		return replaced, nil
	}
	if info.Size() < c.offset {
		return truncated, nil
	}
	return unchanged, nil
}

// lastModified reports the open file's modification time, or the zero
// time if it cannot be read.
func (c *Cursor) lastModified() time.Time {
	info, err := c.file.Stat()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (c *Cursor) close() {
	if c != nil && c.file != nil {
		c.file.Close()
		c.file = nil
	}
}
