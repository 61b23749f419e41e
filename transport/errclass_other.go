//go:build !unix && !windows

package transport

import (
	"errors"
	"syscall"
)

func isPeerGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
