//go:build !windows

package runner

import (
	"errors"
	"os"
	"syscall"
)

// killProcessGroup은 p의 프로세스 그룹 전체에 SIGKILL을 보냅니다.
func killProcessGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
