//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcAttr starts the process as the leader of a new process
// group so signals reach its children too.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the process group led by p, falling back to p
// alone when the group is gone.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		return p.Signal(sig)
	}
	return nil
}
