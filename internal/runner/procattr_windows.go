//go:build windows

package runner

import (
	"os"
	"os/exec"
)

func setProcAttr(*exec.Cmd) {}

// killProcessGroup은 windows에서 프로세스 그룹이 없으므로 자식만 종료합니다.
func killProcessGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
