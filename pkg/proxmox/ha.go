package proxmox

import (
	"context"
	"fmt"
	"strings"
)

// HAManagerStatus fetches cluster/ha/status/manager_status and returns the
// offline count plus per-node mode map.
func (c *Client) HAManagerStatus(ctx context.Context) (HAStatus, error) {
	raw, err := pveshGetJSON(ctx, c, "cluster/ha/status/manager_status", "")
	if err != nil {
		return HAStatus{}, err
	}
	status, err := parseHAStatus(raw)
	if err != nil {
		return HAStatus{}, fmt.Errorf("parsing ha manager_status: %w", err)
	}
	return status, nil
}

// EnterMaintenance enables HA node-maintenance mode for this node.
// Mutating; dry-run gated.
func (c *Client) EnterMaintenance(ctx context.Context) error {
	cmd := `ha-manager crm-command node-maintenance enable $(hostname)`
	res, err := c.guard(ctx, "ha-manager crm-command node-maintenance enable "+c.host, cmd, 0)
	return checkSuccess(res, err, "enter maintenance")
}

// ExitMaintenance disables HA node-maintenance mode for this node.
// Mutating; dry-run gated.
func (c *Client) ExitMaintenance(ctx context.Context) error {
	cmd := `ha-manager crm-command node-maintenance disable $(hostname)`
	res, err := c.guard(ctx, "ha-manager crm-command node-maintenance disable "+c.host, cmd, 0)
	return checkSuccess(res, err, "exit maintenance")
}

// ServiceActive reports whether `systemctl is-active <name>` reports
// "active". Read-only; always executes.
func (c *Client) ServiceActive(ctx context.Context, name string) (bool, error) {
	res, err := c.run(ctx, fmt.Sprintf("systemctl is-active %s", name), 0)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "active", nil
}
