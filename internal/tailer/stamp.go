package tailer

import (
	"fmt"
	"os"
	"time"
)

// fileStamp identifies the underlying file behind a path. Two stamps are
// the same file only if both the creation time and the device/inode pair
// agree, so a file recreated under the same name never matches.
type fileStamp struct {
	born time.Time
	info os.FileInfo
}

func stampOf(f *os.File) (fileStamp, error) {
	info, err := f.Stat()
	if err != nil {
		return fileStamp{}, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	born, err := birthTime(f)
	if err != nil {
		return fileStamp{}, fmt.Errorf("creation time of %s: %w", f.Name(), err)
	}
	return fileStamp{born: born, info: info}, nil
}

func (s fileStamp) same(other fileStamp) bool {
	if s.info == nil || other.info == nil {
		return false
	}
	return s.born.Equal(other.born) && os.SameFile(s.info, other.info)
}
