// Package cluster models the set of nodes an upgrade run operates over
// and the inspector that discovers membership, checks global
// preconditions, and selects upgrade candidates.
package cluster

// Node is one cluster member, as observed during a run. Fields are
// populated incrementally as discovery and precondition checks run; a
// Node is never destroyed during a run.
type Node struct {
	Host string

	Reachable bool
	IsProxmox bool
	HasUpdates bool

	// CurrentMode mirrors the HA manager's reported mode: "online",
	// "maintenance", "unknown", or any other string HA echoes back.
	CurrentMode string

	RunningGuestCount int
	ActiveTaskCount   int

	ExpectedKernel string
	BootedKernel   string
}

// View is the unordered set of cluster members for one run. Membership is
// fixed once built; rediscovery is not attempted mid-run.
type View struct {
	Seed  string
	Nodes []*Node
}

// NodeByHost looks up a member by its host string.
func (v *View) NodeByHost(host string) (*Node, bool) {
	for _, n := range v.Nodes {
		if n.Host == host {
			return n, true
		}
	}
	return nil, false
}

// Hosts returns every member's host string, in View order.
func (v *View) Hosts() []string {
	hosts := make([]string, len(v.Nodes))
	for i, n := range v.Nodes {
		hosts[i] = n.Host
	}
	return hosts
}

// Plan is the ordered sequence of nodes to upgrade, built once after
// global preconditions pass. Every entry is a member of the View it was
// built from and was observed reachable and Proxmox at plan time.
type Plan struct {
	Nodes []*Node
}

// Empty reports whether the plan has no work to do.
func (p Plan) Empty() bool { return len(p.Nodes) == 0 }
