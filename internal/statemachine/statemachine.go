// Package statemachine drives a single node through the full upgrade
// sequence: maintenance entry, drain, dist-upgrade, the reboot decision,
// cleanup, and maintenance exit.
package statemachine

import (
	"context"
	"fmt"
	"time"

	"github.com/thanegill/proxmox-upgrade-cluster/internal/logctx"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/runconfig"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/wait"
	"github.com/thanegill/proxmox-upgrade-cluster/pkg/proxmox"
)

const (
	haPollPeriod     = 1 * time.Second
	drainPollPeriod  = 5 * time.Second
	rebootPollPeriod = 5 * time.Second
	preRebootWarning = 5 * time.Second

	modeMaintenance = "maintenance"
	modeOnline      = "online"
	lrmService      = "pve-ha-lrm"
)

// SeedStatus answers cluster-wide HA questions against the seed node,
// independent of which node is currently being upgraded. A fresh query is
// issued on every poll iteration; nothing is cached between ticks.
type SeedStatus interface {
	OfflineCount(ctx context.Context) (int, error)
	NodeMode(ctx context.Context, host string) (string, error)
}

// SeedClient adapts a proxmox.Client bound to the seed node into a
// SeedStatus.
type SeedClient struct {
	Client *proxmox.Client
}

func (s SeedClient) OfflineCount(ctx context.Context) (int, error) {
	status, err := s.Client.HAManagerStatus(ctx)
	if err != nil {
		return 0, err
	}
	return status.OfflineCount(), nil
}

func (s SeedClient) NodeMode(ctx context.Context, host string) (string, error) {
	status, err := s.Client.HAManagerStatus(ctx)
	if err != nil {
		return "", err
	}
	return status.Mode(host), nil
}

// NodeStateMachine drives one node through its upgrade sequence. Node is
// bound to exactly one host; Seed queries the cluster-wide seed node for
// HA state that isn't local to Node.
type NodeStateMachine struct {
	Node   *proxmox.Client
	Seed   SeedStatus
	Config runconfig.RunConfig
	Log    logctx.Logger

	// Sleep implements the pre-reboot warning window. Overridable in
	// tests; defaults to time.Sleep.
	Sleep func(time.Duration)

	// Poll cadences, overridable in tests to avoid real waits.
	HAPollPeriod     time.Duration
	DrainPollPeriod  time.Duration
	RebootPollPeriod time.Duration
}

// New builds a NodeStateMachine with the real time.Sleep and the
// production poll cadences (1s for HA state, 5s for drain and reboot
// liveness).
func New(node *proxmox.Client, seed SeedStatus, cfg runconfig.RunConfig, log logctx.Logger) *NodeStateMachine {
	return &NodeStateMachine{
		Node:             node,
		Seed:             seed,
		Config:           cfg,
		Log:              log.WithPrefix(node.Host()),
		Sleep:            time.Sleep,
		HAPollPeriod:     haPollPeriod,
		DrainPollPeriod:  drainPollPeriod,
		RebootPollPeriod: rebootPollPeriod,
	}
}

// Run executes every step of the state machine for this node, returning
// on the first failure. It does not attempt to unwind partial progress:
// a node left mid-sequence (e.g. already in maintenance) stays that way.
func (sm *NodeStateMachine) Run(ctx context.Context) error {
	if err := sm.waitClusterOffline(ctx); err != nil {
		return fmt.Errorf("pre-maintenance check: %w", err)
	}

	if sm.Config.UseMaintenanceMode {
		if err := sm.Node.EnterMaintenance(ctx); err != nil {
			return fmt.Errorf("enter maintenance: %w", err)
		}
		if !sm.Config.DryRun {
			if err := sm.waitMode(ctx, modeMaintenance); err != nil {
				return fmt.Errorf("wait for maintenance mode: %w", err)
			}
		}
	}

	if !sm.Config.AllowRunningTasks {
		if err := sm.waitTasksIdle(ctx); err != nil {
			return fmt.Errorf("wait for tasks idle: %w", err)
		}
	}

	if !sm.Config.AllowRunningGuests && !sm.Config.DryRun {
		if err := sm.waitGuestsDrained(ctx); err != nil {
			return fmt.Errorf("wait for guests drained: %w", err)
		}
	}

	if err := sm.Node.AptDistUpgrade(ctx); err != nil {
		return fmt.Errorf("dist-upgrade: %w", err)
	}

	if err := sm.maybeReboot(ctx); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}

	if len(sm.Config.PkgsReinstall) > 0 {
		if err := sm.Node.AptReinstall(ctx, sm.Config.PkgsReinstall); err != nil {
			return fmt.Errorf("reinstall: %w", err)
		}
	}
	if err := sm.Node.AptAutoremoveTwice(ctx); err != nil {
		return fmt.Errorf("autoremove: %w", err)
	}

	if sm.Config.UseMaintenanceMode {
		if err := sm.waitServiceActive(ctx, lrmService); err != nil {
			return fmt.Errorf("wait for %s: %w", lrmService, err)
		}
		if err := sm.Node.ExitMaintenance(ctx); err != nil {
			return fmt.Errorf("exit maintenance: %w", err)
		}
		if !sm.Config.DryRun {
			if err := sm.waitMode(ctx, modeOnline); err != nil {
				return fmt.Errorf("wait for online mode: %w", err)
			}
		}
	}

	return nil
}

func (sm *NodeStateMachine) waitClusterOffline(ctx context.Context) error {
	return wait.Until(ctx, sm.HAPollPeriod, sm.Log, func(ctx context.Context) (string, bool, error) {
		count, err := sm.Seed.OfflineCount(ctx)
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("offline_count=%d", count), count == 0, nil
	})
}

func (sm *NodeStateMachine) waitMode(ctx context.Context, want string) error {
	return wait.Until(ctx, sm.HAPollPeriod, sm.Log, func(ctx context.Context) (string, bool, error) {
		mode, err := sm.Seed.NodeMode(ctx, sm.Node.Host())
		if err != nil {
			return "", false, err
		}
		return mode, mode == want, nil
	})
}

func (sm *NodeStateMachine) waitTasksIdle(ctx context.Context) error {
	return wait.Until(ctx, sm.DrainPollPeriod, sm.Log, func(ctx context.Context) (string, bool, error) {
		tasks, err := sm.Node.ActiveTasks(ctx)
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("active_tasks=%d", len(tasks)), len(tasks) == 0, nil
	})
}

func (sm *NodeStateMachine) waitGuestsDrained(ctx context.Context) error {
	return wait.Until(ctx, sm.DrainPollPeriod, sm.Log, func(ctx context.Context) (string, bool, error) {
		lxc, err := sm.Node.RunningLXC(ctx)
		if err != nil {
			return "", false, err
		}
		qemu, err := sm.Node.RunningQemu(ctx)
		if err != nil {
			return "", false, err
		}
		total := len(lxc) + len(qemu)
		return fmt.Sprintf("running_guests=%d", total), total == 0, nil
	})
}

func (sm *NodeStateMachine) waitServiceActive(ctx context.Context, name string) error {
	return wait.Until(ctx, sm.HAPollPeriod, sm.Log, func(ctx context.Context) (string, bool, error) {
		active, err := sm.Node.ServiceActive(ctx, name)
		if err != nil {
			return "", false, err
		}
		observed := "inactive"
		if active {
			observed = "active"
		}
		return observed, active, nil
	})
}

func (sm *NodeStateMachine) maybeReboot(ctx context.Context) error {
	needsReboot, expected, booted, err := sm.Node.NeedsReboot(ctx)
	if err != nil {
		return err
	}
	reboot := sm.Config.ForceReboot || needsReboot
	sm.Log.Verbose(fmt.Sprintf("reboot decision: force_reboot=%v needs_reboot=%v expected_kernel=%s booted_kernel=%s -> reboot=%v",
		sm.Config.ForceReboot, needsReboot, expected, booted, reboot))
	if !reboot {
		return nil
	}
	if sm.Config.DryRun {
		sm.Log.NoOp("reboot")
		return nil
	}

	sm.Log.Infof("rebooting %s in %s, Ctrl-C to cancel", sm.Node.Host(), preRebootWarning)
	sm.Sleep(preRebootWarning)
	sm.Node.Reboot(ctx)
	sm.Node.TailDmesg(ctx)
	return sm.waitWhoami(ctx)
}

func (sm *NodeStateMachine) waitWhoami(ctx context.Context) error {
	return wait.Until(ctx, sm.RebootPollPeriod, sm.Log, func(ctx context.Context) (string, bool, error) {
		err := sm.Node.Whoami(ctx, proxmox.LivenessProbeTimeout)
		return "awaiting reboot", err == nil, nil
	})
}
