//go:build unix

package segments

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile берёт эксклюзивную advisory-блокировку на сегмент для писателей из других процессов.
func lockFile(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
