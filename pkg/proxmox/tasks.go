package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
)

func guestsRunning(ctx context.Context, c *Client, kind string) ([]Guest, error) {
	raw, err := pveshGetJSON(ctx, c, fmt.Sprintf("nodes/$(hostname)/%s", kind), "")
	if err != nil {
		return nil, err
	}
	var guests []Guest
	if err := json.Unmarshal(raw, &guests); err != nil {
		return nil, fmt.Errorf("parsing nodes/.../%s: %w", kind, err)
	}
	running := make([]Guest, 0, len(guests))
	for _, g := range guests {
		if g.Status != "stopped" {
			running = append(running, g)
		}
	}
	return running, nil
}

// RunningLXC returns containers whose status is not "stopped".
func (c *Client) RunningLXC(ctx context.Context) ([]Guest, error) {
	return guestsRunning(ctx, c, "lxc")
}

// RunningQemu returns VMs whose status is not "stopped".
func (c *Client) RunningQemu(ctx context.Context) ([]Guest, error) {
	return guestsRunning(ctx, c, "qemu")
}

// ActiveTasks returns this node's in-flight PVE tasks. An empty slice
// means the node is idle; callers compute "tasks present" explicitly
// rather than relying on a length-as-exit-code convention.
func (c *Client) ActiveTasks(ctx context.Context) ([]Task, error) {
	raw, err := pveshGetJSON(ctx, c, "nodes/$(hostname)/tasks", "--source=active")
	if err != nil {
		return nil, err
	}
	var tasks []Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, fmt.Errorf("parsing nodes/.../tasks: %w", err)
	}
	return tasks, nil
}
