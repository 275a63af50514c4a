package netcore

import (
	"strconv"
	"syscall"

	"github.com/pkg/errors"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

// fdFromConn duplicates the file descriptor backing conn via SyscallConn
// and dup(2), so that the duplicated fd's lifetime is independent of the
// originating net.Conn/net.Listener value.
func fdFromConn(conn interface {
	SyscallConn() (syscall.RawConn, error)
}) (int, error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return -1, errors.Wrap(ErrUnsupportedConn, err.Error())
	}

	var newfd int
	var dupErr error
	ctrlErr := rc.Control(func(fd uintptr) {
		newfd, dupErr = syscall.Dup(int(fd))
	})
	if ctrlErr != nil {
		return -1, errors.Wrap(ctrlErr, "netcore: SyscallConn.Control")
	}
	if dupErr != nil {
		return -1, errors.Wrap(dupErr, "netcore: dup")
	}
	return newfd, nil
}
