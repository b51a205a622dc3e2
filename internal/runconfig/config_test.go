package runconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultUsesEnvSSHUser(t *testing.T) {
	getenv := func(k string) string {
		if k == "PVE_UPGRADE_SSH_USER" {
			return "deploy"
		}
		return ""
	}
	cfg := Default(getenv)
	assert.Equal(t, "deploy", cfg.SSHUser)
	assert.True(t, cfg.UseMaintenanceMode)
}

func TestDefaultFallsBackToRoot(t *testing.T) {
	cfg := Default(func(string) string { return "" })
	assert.Equal(t, DefaultSSHUser, cfg.SSHUser)
}

func TestValidateRequiresExactlyOneSeedMode(t *testing.T) {
	cfg := Default(func(string) string { return "" })

	require.Error(t, cfg.Validate(), "neither cluster-node nor node set")

	both := cfg
	both.ClusterNode = "pve1"
	both.Nodes = []string{"pve2"}
	require.Error(t, both.Validate(), "both set")

	onlyCluster := cfg
	onlyCluster.ClusterNode = "pve1"
	require.NoError(t, onlyCluster.Validate())
	assert.Equal(t, SeedFromClusterNode, onlyCluster.Mode())

	onlyNodes := cfg
	onlyNodes.Nodes = []string{"pve2", "pve3"}
	require.NoError(t, onlyNodes.Validate())
	assert.Equal(t, SeedExplicitList, onlyNodes.Mode())
}

func TestValidateRejectsEmptyValues(t *testing.T) {
	base := Default(func(string) string { return "" })
	base.ClusterNode = "pve1"

	missingUser := base
	missingUser.SSHUser = ""
	assert.Error(t, missingUser.Validate())

	badVerbosity := base
	badVerbosity.Verbose = 8
	assert.Error(t, badVerbosity.Validate())

	emptyNode := Default(func(string) string { return "" })
	emptyNode.Nodes = []string{""}
	assert.Error(t, emptyNode.Validate())

	emptyPkg := base
	emptyPkg.PkgsReinstall = []string{""}
	assert.Error(t, emptyPkg.Validate())
}
