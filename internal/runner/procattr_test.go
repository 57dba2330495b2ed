//go:build !windows

package runner

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetProcAttr(t *testing.T) {
	cmd := exec.Command("true")
	setProcAttr(cmd)

	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setpgid)
}

func TestKillProcessGroup(t *testing.T) {
	assert.NoError(t, killProcessGroup(nil))

	cmd := exec.Command("sleep", "60")
	setProcAttr(cmd)
	require.NoError(t, cmd.Start())

	assert.NoError(t, killProcessGroup(cmd.Process))
	_ = cmd.Wait()

	// 이미 종료된 그룹은 에러가 아닙니다.
	assert.NoError(t, killProcessGroup(cmd.Process))
}
