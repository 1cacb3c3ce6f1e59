//go:build linux

package proc

import (
	"errors"
	"strconv"

	"golang.org/x/sys/unix"
)

// OpenTask opens an O_PATH handle on /proc/self/task/<tid>. The handle pins the
// task directory: once the thread exits, reads through it fail with ESRCH
// instead of reaching a thread that reused the id.
func OpenTask(tid int) (int, error) {
	return unix.Open(taskPath(tid), unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
}

// ReadTaskFile reads the file name relative to a task handle into buf and
// returns the number of bytes read. A dirfd of -1 resolves name against
// /proc/self/task/<tid> instead.
func ReadTaskFile(dirfd, tid int, name string, buf []byte) (int, error) {
	var (
		fd  int
		err error
	)
	if dirfd >= 0 {
		fd, err = unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	} else {
		fd, err = unix.Open(taskPath(tid)+"/"+name, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	}
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd) // nolint:errcheck

	total := 0
	for total < len(buf) {
		n, err := unix.Read(fd, buf[total:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

func taskPath(tid int) string {
	return "/proc/self/task/" + strconv.Itoa(tid)
}
