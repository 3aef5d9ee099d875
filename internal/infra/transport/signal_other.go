//go:build !unix

package transport

import (
	"os"

	"github.com/cockroachdb/errors"
)

// ErrPauseUnsupported is returned where player processes cannot be suspended.
var ErrPauseUnsupported = errors.New("pause is not supported on this platform")

func suspend(p *os.Process) error {
	return ErrPauseUnsupported
}

func resume(p *os.Process) error {
	return ErrPauseUnsupported
}
