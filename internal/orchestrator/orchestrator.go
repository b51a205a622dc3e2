// Package orchestrator implements the top-level upgrade flow: discover
// membership, verify cluster-wide preconditions, build an upgrade plan,
// and drive the per-node state machine to completion in plan order.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/thanegill/proxmox-upgrade-cluster/internal/cluster"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/logctx"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/remoteexec"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/runconfig"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/statemachine"
	"github.com/thanegill/proxmox-upgrade-cluster/pkg/proxmox"
)

// Orchestrator wires the cluster inspector and node state machines
// together to run one full rollout.
type Orchestrator struct {
	Config runconfig.RunConfig
	Exec   remoteexec.RemoteExec
	Log    logctx.Logger

	// Overrides for the per-node state machine's timing, zero-value
	// meaning "use statemachine's own defaults". Tests set these to avoid
	// waiting out real poll cadences and the pre-reboot warning window.
	Sleep            func(time.Duration)
	HAPollPeriod     time.Duration
	DrainPollPeriod  time.Duration
	RebootPollPeriod time.Duration
}

// Run executes the full rollout flow, in order, aborting on the first
// failure.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if o.Config.DryRun {
		o.Log.Info("DRY RUN: no mutating command will be executed against any node")
	}

	insp := &cluster.Inspector{Exec: o.Exec, Config: o.Config, Log: o.Log}

	var view *cluster.View
	var err error
	switch o.Config.Mode() {
	case runconfig.SeedFromClusterNode:
		view, err = insp.Discover(ctx, o.Config.ClusterNode)
		if err != nil {
			return fmt.Errorf("discovering cluster membership: %w", err)
		}
	case runconfig.SeedExplicitList:
		view = cluster.BuildExplicit(o.Config.Nodes)
	default:
		return fmt.Errorf("unknown seed mode %q", o.Config.Mode())
	}

	if err := insp.GlobalPreconditions(ctx, view); err != nil {
		return fmt.Errorf("global preconditions failed: %w", err)
	}

	plan, err := insp.SelectUpgradeCandidates(ctx, view)
	if err != nil {
		return fmt.Errorf("selecting upgrade candidates: %w", err)
	}

	if plan.Empty() {
		o.Log.Info("No nodes need updates. Exiting.")
		return nil
	}

	seedClient := proxmox.NewClient(o.Exec, view.Seed, o.Config.DryRun, o.Log)
	seed := statemachine.SeedClient{Client: seedClient}

	for _, n := range plan.Nodes {
		nodeClient := proxmox.NewClient(o.Exec, n.Host, o.Config.DryRun, o.Log)
		sm := statemachine.New(nodeClient, seed, o.Config, o.Log)
		if o.Sleep != nil {
			sm.Sleep = o.Sleep
		}
		if o.HAPollPeriod > 0 {
			sm.HAPollPeriod = o.HAPollPeriod
		}
		if o.DrainPollPeriod > 0 {
			sm.DrainPollPeriod = o.DrainPollPeriod
		}
		if o.RebootPollPeriod > 0 {
			sm.RebootPollPeriod = o.RebootPollPeriod
		}
		o.Log.Infof("upgrading %s", n.Host)
		if err := sm.Run(ctx); err != nil {
			return fmt.Errorf("node %s: %w", n.Host, err)
		}
	}

	return nil
}
