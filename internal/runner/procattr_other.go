//go:build !linux && !windows

package runner

import (
	"os/exec"
	"syscall"
)

// setProcAttr는 자식을 새 프로세스 그룹으로 만듭니다. Pdeathsig는 linux에서만 지원됩니다.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
