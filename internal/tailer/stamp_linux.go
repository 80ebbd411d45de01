//go:build linux

package tailer

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// birthTime reads the creation time with statx. Filesystems that do not
// record it yield the zero time and the inode comparison decides alone.
func birthTime(f *os.File) (time.Time, error) {
	var stx unix.Statx_t
	err := unix.Statx(int(f.Fd()), "", unix.AT_EMPTY_PATH|unix.AT_STATX_SYNC_AS_STAT, unix.STATX_BTIME, &stx)
	if err != nil {
		if err == unix.ENOSYS {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}, nil
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
}
