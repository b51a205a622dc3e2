package fanout

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thanegill/proxmox-upgrade-cluster/internal/logctx"
)

func TestRunAggregatesFailuresWithoutShortCircuit(t *testing.T) {
	log := logctx.New(&bytes.Buffer{}, 0)
	hosts := []string{"pve1", "pve2", "pve3", "pve4"}
	var attempts int32

	results := Run(context.Background(), hosts, log, func(ctx context.Context, host string, l logctx.Logger) error {
		atomic.AddInt32(&attempts, 1)
		if host == "pve1" || host == "pve3" {
			return fmt.Errorf("probe failed on %s", host)
		}
		return nil
	})

	assert.Equal(t, int32(4), attempts, "every host must be probed even if earlier ones fail")
	assert.Equal(t, 4, len(results))
	assert.Len(t, Failures(results), 2)
}

func TestRunReportsFailureCountAndDoesNotCancelSiblings(t *testing.T) {
	log := logctx.New(&bytes.Buffer{}, 0)
	hosts := []string{"pve1", "pve2", "pve3"}

	var attempts int32
	results := Run(context.Background(), hosts, log, func(ctx context.Context, host string, l logctx.Logger) error {
		atomic.AddInt32(&attempts, 1)
		if true {
			return fmt.Errorf("boom")
		}
		return nil
	})

	assert.Equal(t, int32(3), attempts)
	assert.Len(t, Failures(results), 3)
	assert.False(t, OK(results))
}

func TestRunSuccessIffZeroFailures(t *testing.T) {
	log := logctx.New(&bytes.Buffer{}, 0)
	hosts := []string{"pve1", "pve2"}

	results := Run(context.Background(), hosts, log, func(ctx context.Context, host string, l logctx.Logger) error {
		if l.Verbosity() < 0 {
			return fmt.Errorf("unreachable")
		}
		return nil
	})

	assert.True(t, OK(results))
	assert.Empty(t, Failures(results))
}
