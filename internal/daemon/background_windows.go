//go:build windows

package daemon

import (
	"os"
	"syscall"
)

const createNewProcessGroup = 0x00000200

func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// terminate kills p; Windows has no SIGTERM. Install the OS service for a
// graceful stop.
func terminate(p *os.Process) error {
	return p.Kill()
}

// alive reports true while FindProcess can open the handle.
func alive(p *os.Process) bool {
	return p != nil
}
