//go:build linux

package runner

import (
	"os/exec"
	"syscall"
)

// setProcAttr는 자식을 새 프로세스 그룹으로 만들고, 부모가 죽으면 SIGTERM을 받도록 설정합니다.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
