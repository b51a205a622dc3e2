package proxmox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/remoteexec"
)

func TestNeedsRebootOnMismatch(t *testing.T) {
	exec := remoteexec.NewFake()
	exec.On("pve2", grubExpectedKernelCmd, remoteexec.Ok("6.8.12-1-pve\n"))
	exec.On("pve2", "uname -r", remoteexec.Ok("6.8.8-1-pve\n"))
	c := newTestClient(exec, "pve2", false)

	needs, expected, booted, err := c.NeedsReboot(context.Background())
	require.NoError(t, err)
	assert.True(t, needs)
	assert.Equal(t, "6.8.12-1-pve", expected)
	assert.Equal(t, "6.8.8-1-pve", booted)
}

func TestNoRebootWhenKernelsMatch(t *testing.T) {
	exec := remoteexec.NewFake()
	exec.On("pve2", grubExpectedKernelCmd, remoteexec.Ok("6.8.8-1-pve\n"))
	exec.On("pve2", "uname -r", remoteexec.Ok("6.8.8-1-pve\n"))
	c := newTestClient(exec, "pve2", false)

	needs, _, _, err := c.NeedsReboot(context.Background())
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestDryRunNeverReboots(t *testing.T) {
	exec := remoteexec.NewFake()
	c := newTestClient(exec, "pve2", true)
	c.Reboot(context.Background())
	assert.Empty(t, exec.CallsFor("pve2"))
}

func TestLiveRebootIssuesCommand(t *testing.T) {
	exec := remoteexec.NewFake()
	c := newTestClient(exec, "pve2", false)
	c.Reboot(context.Background())
	assert.Equal(t, []string{"reboot"}, exec.CommandsFor("pve2"))
}
