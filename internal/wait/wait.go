// Package wait implements the single "wait for remote state" primitive
// every polling site in the state machine shares (HA-mode waits,
// guest-drain, task-idle, reboot-liveness, service-active).
package wait

import (
	"context"
	"time"

	"github.com/thanegill/proxmox-upgrade-cluster/internal/logctx"
)

// Probe reports the current observed value and whether the wait is
// satisfied. A non-nil error is logged and treated as "not yet": pollers
// have no retry cap and leave cancellation to the caller's context.
type Probe func(ctx context.Context) (observed string, done bool, err error)

// Until polls probe every period until it reports done, or ctx is
// cancelled. The first probe happens immediately, before any sleep, so a
// wait that is already satisfied returns without ever touching the
// ticker.
func Until(ctx context.Context, period time.Duration, log logctx.Logger, probe Probe) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		observed, done, err := probe(ctx)
		switch {
		case err != nil:
			log.Debugf("poll error, retrying: %v", err)
		case done:
			log.TickDone()
			return nil
		default:
			log.Tick(observed)
		}

		select {
		case <-ctx.Done():
			log.TickDone()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
