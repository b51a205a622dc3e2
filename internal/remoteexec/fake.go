package remoteexec

import (
	"context"
	"fmt"
	"sync"
)

// Call records one invocation made against a Fake, for assertions about
// command ordering.
type Call struct {
	Host    string
	Command string
	Opts    Options
}

// Fake is a script-driven, call-recording RemoteExec used throughout the
// test suite in place of a real SSH transport.
type Fake struct {
	mu sync.Mutex

	// Handler, when set, is consulted for every call.
	Handler func(host, command string) (Result, error)

	// Scripted maps "host|command" to a queue of results consumed in
	// order; the last entry repeats once exhausted. Only consulted when
	// Handler is nil.
	Scripted map[string][]Result

	// Default is returned when neither Handler nor a Scripted entry
	// matches.
	Default Result

	Calls []Call
}

// NewFake returns an empty Fake that succeeds (exit 0, no output) for any
// unscripted call.
func NewFake() *Fake {
	return &Fake{Scripted: map[string][]Result{}}
}

func key(host, command string) string { return host + "|" + command }

// On scripts a sequence of results for a given host+command pair.
func (f *Fake) On(host, command string, results ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scripted[key(host, command)] = results
}

// Run implements RemoteExec.
func (f *Fake) Run(_ context.Context, host, command string, opts Options) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Host: host, Command: command, Opts: opts})
	handler := f.Handler
	queue, scripted := f.Scripted[key(host, command)]
	f.mu.Unlock()

	if handler != nil {
		return handler(host, command)
	}
	if scripted && len(queue) > 0 {
		next := queue[0]
		if len(queue) > 1 {
			f.mu.Lock()
			f.Scripted[key(host, command)] = queue[1:]
			f.mu.Unlock()
		}
		return next, nil
	}
	return f.Default, nil
}

// CallsFor filters the recorded call log to a single host, in order.
func (f *Fake) CallsFor(host string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, 0, len(f.Calls))
	for _, c := range f.Calls {
		if c.Host == host {
			out = append(out, c)
		}
	}
	return out
}

// CommandsFor returns just the command strings issued against a host, in
// order, for asserting the mutating-command sequence.
func (f *Fake) CommandsFor(host string) []string {
	calls := f.CallsFor(host)
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Command
	}
	return out
}

// Ok is a convenience constructor for a successful Result.
func Ok(stdout string) Result { return Result{Stdout: stdout, ExitCode: 0} }

// Fail is a convenience constructor for a nonzero-exit Result.
func Fail(stderr string, code int) Result {
	if code == 0 {
		code = 1
	}
	return Result{Stderr: stderr, ExitCode: code}
}

// String is a debugging helper.
func (c Call) String() string {
	return fmt.Sprintf("%s: %s (timeout=%s)", c.Host, c.Command, c.Opts.Timeout)
}
