package proxmox

import (
	"context"
	"fmt"
	"strings"
)

const aptEnv = "DEBIAN_FRONTEND=noninteractive"

// AptUpdate refreshes the remote apt cache. Treated as read-only: it
// always executes, even under dry-run, because the orchestrator needs an
// up-to-date cache to decide which nodes have updates at all.
func (c *Client) AptUpdate(ctx context.Context) error {
	res, err := c.run(ctx, aptEnv+" apt-get update", 0)
	return checkSuccess(res, err, "apt-get update")
}

// AptSimulateUpgrade runs `apt-get -qq -s upgrade` and reports whether any
// updates are pending. Empty stdout means "no updates". Always executes,
// even under dry-run.
func (c *Client) AptSimulateUpgrade(ctx context.Context) (bool, error) {
	res, err := c.run(ctx, aptEnv+" apt-get -qq -s upgrade", 0)
	if err != nil {
		return false, err
	}
	if !res.Success() {
		return false, fmt.Errorf("apt-get -qq -s upgrade failed (exit %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// AptDistUpgrade issues `apt-get dist-upgrade -y`. Mutating; dry-run
// gated.
func (c *Client) AptDistUpgrade(ctx context.Context) error {
	res, err := c.guard(ctx, "apt-get dist-upgrade -y", aptEnv+" apt-get dist-upgrade -y", 0)
	return checkSuccess(res, err, "apt-get dist-upgrade")
}

// AptReinstall issues `apt-get reinstall -y <pkgs>`. Mutating; dry-run gated.
// Callers only invoke this when pkgs is non-empty.
func (c *Client) AptReinstall(ctx context.Context, pkgs []string) error {
	cmd := fmt.Sprintf("%s apt-get reinstall -y %s", aptEnv, strings.Join(pkgs, " "))
	res, err := c.guard(ctx, "apt-get reinstall "+strings.Join(pkgs, " "), cmd, 0)
	return checkSuccess(res, err, "apt-get reinstall")
}

// AptAutoremoveTwice issues `apt-get autoremove -y` twice in sequence:
// on some dependency graphs a second pass removes packages orphaned by
// the first.
func (c *Client) AptAutoremoveTwice(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		res, err := c.guard(ctx, "apt-get autoremove -y", aptEnv+" apt-get autoremove -y", 0)
		if err := checkSuccess(res, err, "apt-get autoremove"); err != nil {
			return err
		}
	}
	return nil
}
