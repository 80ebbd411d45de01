//go:build !linux

package tailer

import (
	"os"
	"time"
)

func birthTime(*os.File) (time.Time, error) {
	return time.Time{}, nil
}
