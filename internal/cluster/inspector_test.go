package cluster

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thanegill/proxmox-upgrade-cluster/internal/logctx"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/remoteexec"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/runconfig"
)

func newInspector(exec *remoteexec.Fake, cfg runconfig.RunConfig) *Inspector {
	return &Inspector{Exec: exec, Config: cfg, Log: logctx.New(&bytes.Buffer{}, 0)}
}

func TestDiscoverProjectsNamesByDefault(t *testing.T) {
	exec := remoteexec.NewFake()
	exec.On("pve1", "whoami", remoteexec.Ok("root"))
	exec.On("pve1", "hash pvesh", remoteexec.Ok(""))
	exec.On("pve1", "pvesh get cluster/status --output-form=json", remoteexec.Ok(
		`[{"type":"cluster","name":"mycluster"},{"type":"node","name":"pve1","ip":"10.0.0.1"},{"type":"node","name":"pve2","ip":"10.0.0.2"}]`,
	))

	insp := newInspector(exec, runconfig.RunConfig{})
	view, err := insp.Discover(context.Background(), "pve1")
	require.NoError(t, err)
	assert.Equal(t, "pve1", view.Seed)
	assert.Equal(t, []string{"pve1", "pve2"}, view.Hosts())
}

func TestDiscoverProjectsIPsWhenConfigured(t *testing.T) {
	exec := remoteexec.NewFake()
	exec.On("pve1", "whoami", remoteexec.Ok("root"))
	exec.On("pve1", "hash pvesh", remoteexec.Ok(""))
	exec.On("pve1", "pvesh get cluster/status --output-form=json", remoteexec.Ok(
		`[{"type":"node","name":"pve1","ip":"10.0.0.1"},{"type":"node","name":"pve2","ip":"10.0.0.2"}]`,
	))

	insp := newInspector(exec, runconfig.RunConfig{ClusterNodeUseIP: true})
	view, err := insp.Discover(context.Background(), "pve1")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, view.Hosts())
}

func TestDiscoverFailsWhenSeedIsNotProxmox(t *testing.T) {
	exec := remoteexec.NewFake()
	exec.On("pve1", "whoami", remoteexec.Ok("root"))
	exec.On("pve1", "hash pvesh", remoteexec.Fail("not found", 1))

	insp := newInspector(exec, runconfig.RunConfig{})
	_, err := insp.Discover(context.Background(), "pve1")
	require.Error(t, err)
}

func TestBuildExplicitUsesFirstNodeAsSeed(t *testing.T) {
	view := BuildExplicit([]string{"pve3", "pve1", "pve2"})
	assert.Equal(t, "pve3", view.Seed)
	assert.Equal(t, []string{"pve3", "pve1", "pve2"}, view.Hosts())
}

func viewOf(hosts ...string) *View {
	v := &View{Seed: hosts[0]}
	for _, h := range hosts {
		v.Nodes = append(v.Nodes, &Node{Host: h})
	}
	return v
}

func TestGlobalPreconditionsPassesWhenHealthy(t *testing.T) {
	exec := remoteexec.NewFake()
	for _, h := range []string{"pve1", "pve2"} {
		exec.On(h, "whoami", remoteexec.Ok("root"))
		exec.On(h, "hash pvesh", remoteexec.Ok(""))
		exec.On(h, "pvesh get nodes/$(hostname)/tasks --source=active --output-form=json", remoteexec.Ok("[]"))
	}
	exec.On("pve1", "pvesh get cluster/ha/status/manager_status --output-form=json", remoteexec.Ok(
		`{"manager_status":{"node_status":{"pve1":"online","pve2":"online"}}}`,
	))

	insp := newInspector(exec, runconfig.RunConfig{})
	view := viewOf("pve1", "pve2")
	require.NoError(t, insp.GlobalPreconditions(context.Background(), view))

	n1, _ := view.NodeByHost("pve1")
	assert.True(t, n1.Reachable)
	assert.True(t, n1.IsProxmox)
}

func TestGlobalPreconditionsFailsOnUnreachableNode(t *testing.T) {
	exec := remoteexec.NewFake()
	exec.On("pve1", "whoami", remoteexec.Ok("root"))
	exec.On("pve1", "hash pvesh", remoteexec.Ok(""))
	exec.On("pve2", "whoami", remoteexec.Fail("no route to host", 255))

	insp := newInspector(exec, runconfig.RunConfig{})
	view := viewOf("pve1", "pve2")
	err := insp.GlobalPreconditions(context.Background(), view)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pve2")
}

func TestGlobalPreconditionsFailsWhenHAReportsOfflineNodes(t *testing.T) {
	exec := remoteexec.NewFake()
	exec.On("pve1", "whoami", remoteexec.Ok("root"))
	exec.On("pve1", "hash pvesh", remoteexec.Ok(""))
	exec.On("pve1", "pvesh get cluster/ha/status/manager_status --output-form=json", remoteexec.Ok(
		`{"manager_status":{"node_status":{"pve1":"online","pve2":"unknown"}}}`,
	))

	insp := newInspector(exec, runconfig.RunConfig{})
	view := viewOf("pve1")
	err := insp.GlobalPreconditions(context.Background(), view)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
}

func TestGlobalPreconditionsFailsOnActiveTasksUnlessAllowed(t *testing.T) {
	exec := remoteexec.NewFake()
	exec.On("pve1", "whoami", remoteexec.Ok("root"))
	exec.On("pve1", "hash pvesh", remoteexec.Ok(""))
	exec.On("pve1", "pvesh get cluster/ha/status/manager_status --output-form=json", remoteexec.Ok(
		`{"manager_status":{"node_status":{"pve1":"online"}}}`,
	))
	exec.On("pve1", "pvesh get nodes/$(hostname)/tasks --source=active --output-form=json", remoteexec.Ok(
		`[{"upid":"UPID:pve1:...","type":"vzdump","status":"running"}]`,
	))

	insp := newInspector(exec, runconfig.RunConfig{})
	view := viewOf("pve1")
	require.Error(t, insp.GlobalPreconditions(context.Background(), view))

	insp.Config.AllowRunningTasks = true
	require.NoError(t, insp.GlobalPreconditions(context.Background(), view))
}

func TestSelectUpgradeCandidatesHonoursForceUpgrade(t *testing.T) {
	exec := remoteexec.NewFake()
	for _, h := range []string{"pve1", "pve2"} {
		exec.On(h, "DEBIAN_FRONTEND=noninteractive apt-get update", remoteexec.Ok(""))
	}

	insp := newInspector(exec, runconfig.RunConfig{ForceUpgrade: true})
	view := viewOf("pve1", "pve2")
	plan, err := insp.SelectUpgradeCandidates(context.Background(), view)
	require.NoError(t, err)
	assert.Len(t, plan.Nodes, 2)
}

func TestSelectUpgradeCandidatesFiltersByHasUpdates(t *testing.T) {
	exec := remoteexec.NewFake()
	for _, h := range []string{"pve1", "pve2"} {
		exec.On(h, "DEBIAN_FRONTEND=noninteractive apt-get update", remoteexec.Ok(""))
	}
	exec.On("pve1", "DEBIAN_FRONTEND=noninteractive apt-get -qq -s upgrade", remoteexec.Ok("Inst libfoo"))
	exec.On("pve2", "DEBIAN_FRONTEND=noninteractive apt-get -qq -s upgrade", remoteexec.Ok(""))

	insp := newInspector(exec, runconfig.RunConfig{})
	view := viewOf("pve1", "pve2")
	plan, err := insp.SelectUpgradeCandidates(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, plan.Nodes, 1)
	assert.Equal(t, "pve1", plan.Nodes[0].Host)
	assert.False(t, plan.Empty())
}

func TestSelectUpgradeCandidatesEmptyPlanWhenNoneNeedUpdates(t *testing.T) {
	exec := remoteexec.NewFake()
	exec.On("pve1", "DEBIAN_FRONTEND=noninteractive apt-get update", remoteexec.Ok(""))
	exec.On("pve1", "DEBIAN_FRONTEND=noninteractive apt-get -qq -s upgrade", remoteexec.Ok(""))

	insp := newInspector(exec, runconfig.RunConfig{})
	view := viewOf("pve1")
	plan, err := insp.SelectUpgradeCandidates(context.Background(), view)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}
