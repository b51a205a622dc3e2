// Command pve-upgrade performs a rolling apt-get dist-upgrade and reboot
// across a Proxmox VE cluster, one node at a time, behind HA maintenance
// mode. Flag parsing and environment defaults are defined on the root
// command below; the verbosity bands are listed in internal/logctx, and
// the actual rollout is implemented by internal/orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/thanegill/proxmox-upgrade-cluster/internal/logctx"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/orchestrator"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/remoteexec"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/runconfig"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// flagValues holds every flag's bound destination. Kept as a struct
// rather than package-level variables so configFromFlags can be exercised
// directly from tests without going through cobra's parser.
type flagValues struct {
	clusterNode        string
	nodes              []string
	sshUser            string
	sshOptions         []string
	sshKeyAuthOnly     bool
	clusterNodeUseIP   bool
	dryRun             bool
	pkgsReinstall      []string
	forceUpgrade       bool
	forceReboot        bool
	noMaintenanceMode  bool
	allowRunningGuests bool
	allowRunningTasks  bool
	jqBin              string
	verbosity          int
}

func newRootCmd() (*cobra.Command, *flagValues) {
	v := &flagValues{}

	cmd := &cobra.Command{
		Use:           "pve-upgrade",
		Short:         "Rolling apt-get dist-upgrade across a Proxmox VE cluster",
		Long: `pve-upgrade walks a Proxmox VE cluster one node at a time: it enters HA
maintenance mode, drains active tasks and guests, runs apt-get
dist-upgrade, reboots if the kernel changed, then exits maintenance mode
before moving to the next node.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromFlags(v, os.Getenv)
			if err != nil {
				return fmt.Errorf("%w\nRun '%s --help' for usage.", err, cmd.CommandPath())
			}
			return runOrchestrator(cmd, cfg)
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w\nRun '%s --help' for usage.", err, c.CommandPath())
	})

	registerFlags(cmd.Flags(), v)
	return cmd, v
}

func registerFlags(flags *pflag.FlagSet, v *flagValues) {
	flags.StringVarP(&v.clusterNode, "cluster-node", "c", "", "seed node to discover cluster membership from")
	flags.StringArrayVarP(&v.nodes, "node", "n", nil, "node to upgrade; repeatable for an explicit list")
	flags.StringVar(&v.sshUser, "ssh-user", "", "SSH user (default: $PVE_UPGRADE_SSH_USER, else root)")
	flags.StringArrayVar(&v.sshOptions, "ssh-option", nil, "extra `ssh -o` option, repeatable")
	flags.BoolVar(&v.sshKeyAuthOnly, "ssh-key-auth-only", false, "refuse SSH password authentication")
	flags.BoolVar(&v.clusterNodeUseIP, "cluster-node-use-ip", false, "address discovered members by IP instead of hostname")
	flags.BoolVar(&v.dryRun, "dry-run", false, "log every mutating command instead of running it")
	flags.StringArrayVar(&v.pkgsReinstall, "reinstall-pkg", nil, "package to reinstall after the upgrade, repeatable")
	flags.BoolVar(&v.forceUpgrade, "force-upgrade", false, "upgrade every candidate node regardless of apt-get's simulated result")
	flags.BoolVar(&v.forceReboot, "force-reboot", false, "reboot every upgraded node regardless of kernel mismatch")
	flags.BoolVar(&v.noMaintenanceMode, "no-maintenance-mode", false, "skip HA maintenance-mode enter/exit entirely")
	flags.BoolVar(&v.allowRunningGuests, "allow-running-guests", false, "skip the guest-drain wait")
	flags.BoolVar(&v.allowRunningTasks, "allow-running-tasks", false, "skip the active-task precondition and wait")
	flags.StringVar(&v.jqBin, "jq-bin", "", "path to jq (compatibility no-op; this client parses pvesh JSON directly)")
	flags.CountVarP(&v.verbosity, "verbose", "v", "increase log verbosity, repeatable up to 7")
}

// configFromFlags maps parsed flag values onto a RunConfig and validates
// it. It touches no global state besides the environment lookup, so
// tests can drive it with a hand-built flagValues and a fake getenv
// without going through cobra's parser at all.
func configFromFlags(v *flagValues, getenv func(string) string) (runconfig.RunConfig, error) {
	cfg := runconfig.Default(getenv)

	cfg.ClusterNode = v.clusterNode
	cfg.Nodes = v.nodes
	if v.sshUser != "" {
		cfg.SSHUser = v.sshUser
	}
	cfg.SSHOptions = v.sshOptions
	cfg.SSHKeyAuthOnly = v.sshKeyAuthOnly
	cfg.ClusterNodeUseIP = v.clusterNodeUseIP
	cfg.DryRun = v.dryRun
	cfg.PkgsReinstall = v.pkgsReinstall
	cfg.ForceUpgrade = v.forceUpgrade
	cfg.ForceReboot = v.forceReboot
	cfg.UseMaintenanceMode = !v.noMaintenanceMode
	cfg.AllowRunningGuests = v.allowRunningGuests
	cfg.AllowRunningTasks = v.allowRunningTasks
	cfg.JQPath = v.jqBin
	cfg.Verbose = v.verbosity

	if err := cfg.Validate(); err != nil {
		return runconfig.RunConfig{}, err
	}
	return cfg, nil
}

func runOrchestrator(cmd *cobra.Command, cfg runconfig.RunConfig) error {
	log := logctx.New(cmd.OutOrStdout(), cfg.Verbose)
	exec := remoteexec.NewSSHExec(cfg.SSHUser, cfg.SSHOptions, cfg.SSHKeyAuthOnly, cfg.Verbose)
	orch := &orchestrator.Orchestrator{Config: cfg, Exec: exec, Log: log}
	if err := orch.Run(cmd.Context()); err != nil {
		log.Error(err, "upgrade run failed")
		return err
	}
	return nil
}

func main() {
	cmd, _ := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
