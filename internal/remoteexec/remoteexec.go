// Package remoteexec defines the RemoteExec capability the rest of the
// orchestrator consumes and an SSH-CLI-backed implementation. The
// contract is deliberately narrow: run a command on a named host, hand
// back whatever came out, and let the caller decide whether a non-zero
// exit is a problem.
package remoteexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result carries the outcome of a single remote command. A non-zero
// ExitCode is not itself an error: callers inspect it explicitly.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the remote command exited zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Options configures a single Run call.
type Options struct {
	// Timeout bounds the SSH connection attempt. Zero means no explicit
	// connect timeout is requested (the transport's own default applies).
	Timeout time.Duration
}

// RemoteExec runs a shell command on a named host. The command is executed
// in a shell on the remote side, so `$(hostname)`-style expansion happens
// remotely, not locally. A returned error indicates a transport failure
// (could not connect, could not start the command) rather than a
// nonzero remote exit status.
type RemoteExec interface {
	Run(ctx context.Context, host, command string, opts Options) (Result, error)
}

// SSHExec runs commands via the system `ssh` binary, one process per
// call, shelling out and draining stdout/stderr with exec.CommandContext.
type SSHExec struct {
	// User is the remote login name.
	User string
	// ExtraOptions are appended verbatim as `-o value` pairs are not
	// assumed; callers supply fully-formed `-o Foo=bar` style strings.
	ExtraOptions []string
	// KeyAuthOnly forces PasswordAuthentication=no.
	KeyAuthOnly bool
	// Verbose drives how many -v flags are passed (bands 5 and 7, per the
	// spec's logging section).
	Verbose int
	// Binary overrides the ssh executable name, for tests.
	Binary string

	// commandContext is overridable in tests.
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewSSHExec builds an SSHExec for the given user and verbosity.
func NewSSHExec(user string, extraOptions []string, keyAuthOnly bool, verbose int) *SSHExec {
	return &SSHExec{
		User:         user,
		ExtraOptions: extraOptions,
		KeyAuthOnly:  keyAuthOnly,
		Verbose:      verbose,
	}
}

func (s *SSHExec) binary() string {
	if s.Binary != "" {
		return s.Binary
	}
	return "ssh"
}

func (s *SSHExec) cmdCtx() func(ctx context.Context, name string, args ...string) *exec.Cmd {
	if s.commandContext != nil {
		return s.commandContext
	}
	return exec.CommandContext
}

// Run shells the command through `ssh user@host command` with the
// configured options.
func (s *SSHExec) Run(ctx context.Context, host, command string, opts Options) (Result, error) {
	args := []string{"-o", "BatchMode=yes"}
	if opts.Timeout > 0 {
		args = append(args, "-o", fmt.Sprintf("ConnectTimeout=%d", int(opts.Timeout.Seconds())))
	}
	if s.KeyAuthOnly {
		args = append(args, "-o", "PasswordAuthentication=no")
	}
	args = append(args, s.ExtraOptions...)
	if s.Verbose >= 7 {
		args = append(args, "-v", "-v", "-v")
	} else if s.Verbose >= 5 {
		args = append(args, "-v")
	}
	args = append(args, fmt.Sprintf("%s@%s", s.User, host), command)

	cmd := s.cmdCtx()(ctx, s.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitErr.ExitCode()}, nil
		}
		return Result{}, fmt.Errorf("ssh %s@%s: %w", s.User, host, err)
	}
	return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 0}, nil
}
