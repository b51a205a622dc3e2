// Package runconfig defines the immutable configuration the orchestrator
// is driven by, and the pure validation/defaulting logic the CLI layer
// calls into. Keeping this logic free of cobra/os lets it be unit tested
// without spawning a process.
package runconfig

import "fmt"

// SeedMode selects how cluster membership is determined.
type SeedMode string

const (
	// SeedFromClusterNode discovers membership from a single seed node's
	// cluster/status.
	SeedFromClusterNode SeedMode = "from-cluster-node"
	// SeedExplicitList upgrades exactly the nodes the operator named.
	SeedExplicitList SeedMode = "explicit-list"
)

// DefaultSSHUser is used when neither --ssh-user nor PVE_UPGRADE_SSH_USER
// is set.
const DefaultSSHUser = "root"

// RunConfig is immutable after construction; every field mirrors an
// operator-facing flag.
type RunConfig struct {
	SeedMode SeedMode

	ClusterNode string
	Nodes       []string

	SSHUser        string
	SSHOptions     []string
	SSHKeyAuthOnly bool

	ClusterNodeUseIP bool

	DryRun bool

	PkgsReinstall []string

	ForceUpgrade bool
	ForceReboot  bool

	UseMaintenanceMode bool
	AllowRunningGuests bool
	AllowRunningTasks  bool

	JQPath string

	Verbose int
}

// Default returns a RunConfig with every flag at its documented default,
// resolving the SSH user from the environment.
func Default(getenv func(string) string) RunConfig {
	sshUser := getenv("PVE_UPGRADE_SSH_USER")
	if sshUser == "" {
		sshUser = DefaultSSHUser
	}
	return RunConfig{
		SSHUser:            sshUser,
		UseMaintenanceMode: true,
	}
}

// Validate enforces exactly one seed mode, with its required value
// present.
func (c RunConfig) Validate() error {
	hasClusterNode := c.ClusterNode != ""
	hasNodes := len(c.Nodes) > 0

	if hasClusterNode && hasNodes {
		return fmt.Errorf("--cluster-node and --node are mutually exclusive")
	}
	if !hasClusterNode && !hasNodes {
		return fmt.Errorf("exactly one of --cluster-node or --node is required")
	}
	if hasClusterNode {
		c.SeedMode = SeedFromClusterNode
	} else {
		c.SeedMode = SeedExplicitList
	}

	if c.SSHUser == "" {
		return fmt.Errorf("--ssh-user must not be empty")
	}
	if c.Verbose < 0 || c.Verbose > 7 {
		return fmt.Errorf("verbosity must be between 0 and 7, got %d", c.Verbose)
	}
	for _, n := range c.Nodes {
		if n == "" {
			return fmt.Errorf("--node requires a value")
		}
	}
	for _, pkg := range c.PkgsReinstall {
		if pkg == "" {
			return fmt.Errorf("--reinstall-pkg requires a value")
		}
	}
	return nil
}

// Mode resolves the seed mode, recomputing it the same way Validate does
// (Validate does not mutate the receiver, since RunConfig is meant to stay
// immutable once built).
func (c RunConfig) Mode() SeedMode {
	if c.ClusterNode != "" {
		return SeedFromClusterNode
	}
	return SeedExplicitList
}
