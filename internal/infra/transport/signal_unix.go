//go:build unix

package transport

import (
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
)

func suspend(p *os.Process) error {
	return errors.Wrap(p.Signal(syscall.SIGSTOP), "failed to suspend player")
}

func resume(p *os.Process) error {
	return errors.Wrap(p.Signal(syscall.SIGCONT), "failed to resume player")
}
