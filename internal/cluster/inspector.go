package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/thanegill/proxmox-upgrade-cluster/internal/fanout"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/logctx"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/remoteexec"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/runconfig"
	"github.com/thanegill/proxmox-upgrade-cluster/pkg/proxmox"
)

// Inspector discovers cluster membership, verifies global preconditions,
// and selects which nodes need upgrading.
type Inspector struct {
	Exec   remoteexec.RemoteExec
	Config runconfig.RunConfig
	Log    logctx.Logger
}

func (insp *Inspector) client(host string) *proxmox.Client {
	return proxmox.NewClient(insp.Exec, host, insp.Config.DryRun, insp.Log)
}

// Discover fetches cluster/status from the seed and projects it into a
// View, taking .name or .ip per Config.ClusterNodeUseIP.
func (insp *Inspector) Discover(ctx context.Context, seed string) (*View, error) {
	c := insp.client(seed)
	if err := c.Whoami(ctx, proxmox.SeedDiscoveryTimeout); err != nil {
		return nil, fmt.Errorf("seed node %s unreachable: %w", seed, err)
	}
	isProxmox, err := c.HasPvesh(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed node %s: checking for pvesh: %w", seed, err)
	}
	if !isProxmox {
		return nil, fmt.Errorf("seed node %s is not a Proxmox node", seed)
	}

	entries, err := c.ClusterStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed node %s: discovering cluster members: %w", seed, err)
	}

	view := &View{Seed: seed}
	for _, e := range entries {
		if e.Type != "node" {
			continue
		}
		host := e.Name
		if insp.Config.ClusterNodeUseIP {
			host = e.IP
		}
		if host == "" {
			continue
		}
		view.Nodes = append(view.Nodes, &Node{Host: host})
	}
	return view, nil
}

// BuildExplicit constructs a View from an operator-supplied node list. The
// first node doubles as the seed used for cluster-wide HA queries: for an
// explicit list there is no natural cluster/status call to pick one from,
// so the first entry on the command line wins.
func BuildExplicit(nodes []string) *View {
	view := &View{}
	for _, n := range nodes {
		view.Nodes = append(view.Nodes, &Node{Host: n})
	}
	if len(nodes) > 0 {
		view.Seed = nodes[0]
	}
	return view
}

func aggregateErr(action string, results []fanout.Result) error {
	failures := fanout.Failures(results)
	if len(failures) == 0 {
		return nil
	}
	parts := make([]string, len(failures))
	for i, f := range failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Host, f.Err)
	}
	return fmt.Errorf("%s failed on %d/%d node(s): %s", action, len(failures), len(results), strings.Join(parts, "; "))
}

// fanoutOverNodes runs fn once per node in view, concurrently, binding
// each job to the proxmox.Client for that node.
func (insp *Inspector) fanoutOverNodes(ctx context.Context, view *View, fn func(ctx context.Context, n *Node, log logctx.Logger, c *proxmox.Client) error) []fanout.Result {
	byHost := make(map[string]*Node, len(view.Nodes))
	for _, n := range view.Nodes {
		byHost[n.Host] = n
	}
	return fanout.Run(ctx, view.Hosts(), insp.Log, func(ctx context.Context, host string, log logctx.Logger) error {
		n := byHost[host]
		c := insp.client(host)
		return fn(ctx, n, log, c)
	})
}

// GlobalPreconditions runs every check required before any upgrade
// begins: reachability, Proxmox detection, HA health on the seed, and
// (unless allowed) the absence of active tasks cluster-wide.
func (insp *Inspector) GlobalPreconditions(ctx context.Context, view *View) error {
	results := insp.fanoutOverNodes(ctx, view, func(ctx context.Context, n *Node, log logctx.Logger, c *proxmox.Client) error {
		if err := c.Whoami(ctx, proxmox.LivenessProbeTimeout); err != nil {
			return fmt.Errorf("unreachable: %w", err)
		}
		n.Reachable = true
		isProxmox, err := c.HasPvesh(ctx)
		if err != nil {
			return fmt.Errorf("checking pvesh: %w", err)
		}
		if !isProxmox {
			return fmt.Errorf("not a Proxmox node")
		}
		n.IsProxmox = true
		return nil
	})
	if err := aggregateErr("reachability/proxmox check", results); err != nil {
		return err
	}

	seedClient := insp.client(view.Seed)
	haStatus, err := seedClient.HAManagerStatus(ctx)
	if err != nil {
		return fmt.Errorf("querying HA status on seed %s: %w", view.Seed, err)
	}
	if offline := haStatus.OfflineCount(); offline > 0 {
		return fmt.Errorf("cluster not healthy: %d node(s) offline per HA manager", offline)
	}
	if n, ok := view.NodeByHost(view.Seed); ok {
		n.CurrentMode = haStatus.Mode(view.Seed)
	}

	if !insp.Config.AllowRunningTasks {
		taskResults := insp.fanoutOverNodes(ctx, view, func(ctx context.Context, n *Node, log logctx.Logger, c *proxmox.Client) error {
			tasks, err := c.ActiveTasks(ctx)
			if err != nil {
				return fmt.Errorf("checking active tasks: %w", err)
			}
			n.ActiveTaskCount = len(tasks)
			if len(tasks) > 0 {
				return fmt.Errorf("%d active task(s) present", len(tasks))
			}
			return nil
		})
		if err := aggregateErr("active-task check", taskResults); err != nil {
			return err
		}
	}

	return nil
}

// SelectUpgradeCandidates runs apt-get update everywhere, then includes
// every node (if ForceUpgrade) or only those apt-get -qq -s upgrade
// reports as having pending updates.
func (insp *Inspector) SelectUpgradeCandidates(ctx context.Context, view *View) (*Plan, error) {
	updateResults := insp.fanoutOverNodes(ctx, view, func(ctx context.Context, n *Node, log logctx.Logger, c *proxmox.Client) error {
		if err := c.AptUpdate(ctx); err != nil {
			return fmt.Errorf("apt-get update: %w", err)
		}
		return nil
	})
	if err := aggregateErr("apt-get update", updateResults); err != nil {
		return nil, err
	}

	if insp.Config.ForceUpgrade {
		plan := &Plan{}
		plan.Nodes = append(plan.Nodes, view.Nodes...)
		return plan, nil
	}

	simResults := insp.fanoutOverNodes(ctx, view, func(ctx context.Context, n *Node, log logctx.Logger, c *proxmox.Client) error {
		hasUpdates, err := c.AptSimulateUpgrade(ctx)
		if err != nil {
			return fmt.Errorf("apt-get -qq -s upgrade: %w", err)
		}
		n.HasUpdates = hasUpdates
		return nil
	})
	if err := aggregateErr("update simulation", simResults); err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, n := range view.Nodes {
		if n.HasUpdates {
			plan.Nodes = append(plan.Nodes, n)
		}
	}
	return plan, nil
}
