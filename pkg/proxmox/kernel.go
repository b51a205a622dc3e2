package proxmox

import (
	"context"
	"strings"
)

// grubExpectedKernelCmd must keep matching Proxmox's GRUB layout
// (`/boot/vmlinuz-<version>` under `/ROOT/pve-1@`).
const grubExpectedKernelCmd = `grep vmlinuz /boot/grub/grub.cfg | head -1 | awk '{ print $2 }' | sed -e 's%/boot/vmlinuz-%%;s%/ROOT/pve-1@%%'`

// ExpectedKernel returns the kernel version GRUB would boot next.
func (c *Client) ExpectedKernel(ctx context.Context) (string, error) {
	res, err := c.run(ctx, grubExpectedKernelCmd, 0)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// BootedKernel returns `uname -r`.
func (c *Client) BootedKernel(ctx context.Context) (string, error) {
	res, err := c.run(ctx, "uname -r", 0)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// NeedsReboot reports whether the expected and booted kernels differ,
// along with both versions for logging.
func (c *Client) NeedsReboot(ctx context.Context) (needsReboot bool, expected string, booted string, err error) {
	expected, err = c.ExpectedKernel(ctx)
	if err != nil {
		return false, "", "", err
	}
	booted, err = c.BootedKernel(ctx)
	if err != nil {
		return false, expected, "", err
	}
	return expected != "" && expected != booted, expected, booted, nil
}

// Reboot issues `reboot`. Mutating; dry-run gated. Errors are swallowed
// once the command is actually sent: the connection is expected to die
// as the remote host shuts down, so the authoritative signal that the
// reboot happened is the later liveness poll, not this call's exit code.
func (c *Client) Reboot(ctx context.Context) {
	if _, err := c.guard(ctx, "reboot", "reboot", 0); err != nil {
		c.log.Debugf("reboot command returned (expected, connection dies): %v", err)
	}
}

// TailDmesg best-effort streams `dmesg -W` while the connection dies
// during shutdown. Its output and any error are informational only.
func (c *Client) TailDmesg(ctx context.Context) {
	if c.dryRun {
		return
	}
	res, err := c.run(ctx, "dmesg -W", 0)
	if err != nil {
		c.log.Debugf("dmesg -W returned (expected, connection dies): %v", err)
		return
	}
	if res.Stdout != "" {
		c.log.Debug3(res.Stdout)
	}
}
