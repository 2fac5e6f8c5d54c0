//go:build unix && !linux

package sockio

import "golang.org/x/sys/unix"

// writev flattens iovs into a single write where no vectored write is exposed
func writev(fd int, iovs [][]byte) (int, error) {
	if len(iovs) == 1 {
		return unix.Write(fd, iovs[0])
	}
	size := 0
	for _, b := range iovs {
		size += len(b)
	}
	buf := make([]byte, 0, size)
	for _, b := range iovs {
		buf = append(buf, b...)
	}
	return unix.Write(fd, buf)
}
