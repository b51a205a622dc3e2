// Package fanout runs a read-only per-node operation across a set of
// nodes concurrently and aggregates the result: every job runs to
// completion regardless of siblings, and the aggregate is simply the
// count of failures.
package fanout

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thanegill/proxmox-upgrade-cluster/internal/logctx"
)

// Result is one node's outcome.
type Result struct {
	Host   string
	TaskID uuid.UUID
	Err    error
}

// Job is the per-node operation the caller supplies. The logger it
// receives is already prefixed with the node name (and, at verbosity >=
// 4, a stable task identifier). host is the same host the logger is
// prefixed with, handed back explicitly so the job doesn't need to parse
// it out of a prefix.
type Job func(ctx context.Context, host string, log logctx.Logger) error

// Run starts one goroutine per host, waits for all of them, and returns
// every result. It deliberately does not use errgroup's
// context-cancellation-on-first-error behaviour: a fanout must keep
// probing every node even after one fails, because the operator needs the
// full list of offenders, not just the first.
func Run(ctx context.Context, hosts []string, log logctx.Logger, job Job) []Result {
	results := make([]Result, len(hosts))
	var g errgroup.Group
	var mu sync.Mutex

	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			id := uuid.New()
			nodeLog := log.WithPrefix(host)
			if log.Verbosity() >= 4 {
				nodeLog = nodeLog.WithPrefix(id.String()[:8])
			}
			err := job(ctx, host, nodeLog)

			mu.Lock()
			results[i] = Result{Host: host, TaskID: id, Err: err}
			mu.Unlock()
			return nil // never propagated: failures must not cancel siblings
		})
	}
	_ = g.Wait()
	return results
}

// Failures filters results down to the ones that errored.
func Failures(results []Result) []Result {
	out := make([]Result, 0)
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// OK reports whether every job succeeded.
func OK(results []Result) bool {
	return len(Failures(results)) == 0
}
