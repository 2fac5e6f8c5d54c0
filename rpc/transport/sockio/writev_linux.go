package sockio

import "golang.org/x/sys/unix"

func writev(fd int, iovs [][]byte) (int, error) {
	return unix.Writev(fd, iovs)
}
