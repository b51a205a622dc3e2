// Package proxmox provides typed wrappers over the remote `pvesh`,
// `ha-manager`, and `apt-get` commands a Proxmox node understands,
// shelled out over a remoteexec.RemoteExec. Commands are kept literal
// rather than hidden behind a REST client since Proxmox's own tooling
// and operators rely on them appearing verbatim in logs and shell
// history.
package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/thanegill/proxmox-upgrade-cluster/internal/logctx"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/remoteexec"
)

// LivenessProbeTimeout bounds the per-node reachability and
// Proxmox-detection probes run across the whole cluster.
const LivenessProbeTimeout = 2 * time.Second

// SeedDiscoveryTimeout bounds the one-off seed-node reachability probe
// (whoami) run before membership discovery.
const SeedDiscoveryTimeout = 5 * time.Second

// Every mutating command (apt dist-upgrade/reinstall/autoremove,
// ha-manager enable/disable, reboot) is routed through guard below, the
// single dry-run gate. Read-only queries and apt-get
// update/simulate-upgrade always execute.

// Client is a ProxmoxClient bound to one node.
type Client struct {
	exec   remoteexec.RemoteExec
	host   string
	dryRun bool
	log    logctx.Logger
}

// NewClient binds a RemoteExec to a single node for the lifetime of one
// upgrade run.
func NewClient(exec remoteexec.RemoteExec, host string, dryRun bool, log logctx.Logger) *Client {
	return &Client{exec: exec, host: host, dryRun: dryRun, log: log.WithPrefix(host)}
}

// Host returns the bound node identifier.
func (c *Client) Host() string { return c.host }

func (c *Client) run(ctx context.Context, command string, timeout time.Duration) (remoteexec.Result, error) {
	c.log.ShellTrace("+ " + command)
	res, err := c.exec.Run(ctx, c.host, command, remoteexec.Options{Timeout: timeout})
	if err != nil {
		return res, fmt.Errorf("%s: %w", c.host, err)
	}
	return res, nil
}

// guard routes a mutating command through the dry-run gate: under
// dry_run it logs a NO-OP line and returns success without touching the
// network.
func (c *Client) guard(ctx context.Context, description, command string, timeout time.Duration) (remoteexec.Result, error) {
	if c.dryRun {
		c.log.NoOp(description)
		return remoteexec.Result{ExitCode: 0}, nil
	}
	return c.run(ctx, command, timeout)
}

func checkSuccess(res remoteexec.Result, err error, action string) error {
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("%s failed (exit %d): %s", action, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Whoami succeeds iff SSH login completes within timeout.
func (c *Client) Whoami(ctx context.Context, timeout time.Duration) error {
	res, err := c.run(ctx, "whoami", timeout)
	return checkSuccess(res, err, "whoami")
}

// HasPvesh reports whether `pvesh` is on the node's PATH, i.e. whether it
// is a Proxmox node at all.
func (c *Client) HasPvesh(ctx context.Context) (bool, error) {
	res, err := c.run(ctx, "hash pvesh", LivenessProbeTimeout)
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

func pveshGetJSON(ctx context.Context, c *Client, path string, args string) ([]byte, error) {
	cmd := fmt.Sprintf("pvesh get %s %s --output-form=json", path, args)
	cmd = strings.TrimSpace(strings.ReplaceAll(cmd, "  ", " "))
	res, err := c.run(ctx, cmd, 0)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("pvesh get %s failed (exit %d): %s", path, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return []byte(res.Stdout), nil
}

// ClusterStatus returns the raw cluster/status entries; callers filter to
// Type == "node" and project Name or IP.
func (c *Client) ClusterStatus(ctx context.Context) ([]ClusterStatusEntry, error) {
	raw, err := pveshGetJSON(ctx, c, "cluster/status", "")
	if err != nil {
		return nil, err
	}
	var entries []ClusterStatusEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing cluster/status: %w", err)
	}
	return entries, nil
}
