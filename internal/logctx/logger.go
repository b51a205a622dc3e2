// Package logctx provides the leveled, prefix-stacking logger used across
// the upgrade orchestrator. Verbosity is an integer 0-7 with named bands
// (see bandNames below); every other
// package only depends on the small Logger value, never on zerolog
// directly, so fakes and tests never need to touch global logger state.
package logctx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Band names, indexed by verbosity level 0-7.
var bandNames = [8]string{
	"INFO",
	"VERBOSE",
	"DEBUG",
	"DEBUG2",
	"DEBUG3",
	"SSH-VERBOSE",
	"SHELL-TRACE",
	"SSH-EXTRA-VERBOSE",
}

// Logger is a small value type: copying it is cheap and WithPrefix returns
// an independent child, so callers can freely fan a parent logger out to
// per-node children without synchronization.
type Logger struct {
	zl        zerolog.Logger
	dotWriter io.Writer
	verbosity int
	prefix    string
}

// New builds a Logger writing to w. Verbosity 0-7 gates both the named
// bands (see Info/Verbose/Debug/...) and sub-second timestamps
// (verbosity >= 3).
func New(w io.Writer, verbosity int) Logger {
	timeFormat := zerolog.TimeFormatUnix
	consoleTimeFormat := "15:04:05"
	if verbosity >= 3 {
		timeFormat = zerolog.TimeFormatUnixMs
		consoleTimeFormat = "15:04:05.000"
	}
	noColor := false
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: consoleTimeFormat,
		NoColor:    noColor,
	}
	zerolog.TimeFieldFormat = timeFormat
	// Bands 2+ are emitted at zerolog's TraceLevel, which the global level
	// filters out unless lowered; band gating is done by emit instead.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	zl := zerolog.New(cw).With().Timestamp().Logger()
	return Logger{zl: zl, dotWriter: w, verbosity: verbosity}
}

// WithPrefix returns a child logger whose emissions are prefixed with the
// given context name, composed left to right with any prefixes already on
// the receiver (e.g. WithPrefix("pve2").WithPrefix("upgrade") emits lines
// tagged "[pve2][upgrade]").
func (l Logger) WithPrefix(name string) Logger {
	child := l
	child.prefix = strings.TrimSuffix(l.prefix, " ") + "[" + name + "] "
	return child
}

// Verbosity returns the configured 0-7 level.
func (l Logger) Verbosity() int { return l.verbosity }

// SSHVerboseFlag reports whether the SSH transport should be asked for -v
// output (band 5+).
func (l Logger) SSHVerboseFlag() bool { return l.verbosity >= 5 }

// SSHExtraVerboseFlag reports whether the SSH transport should be asked for
// its most verbose output (band 7).
func (l Logger) SSHExtraVerboseFlag() bool { return l.verbosity >= 7 }

// ShellTraceEnabled reports whether remote shell commands should be run
// with tracing enabled (band 6, `set -x` equivalent).
func (l Logger) ShellTraceEnabled() bool { return l.verbosity >= 6 }

func bandLevel(band int) zerolog.Level {
	switch {
	case band <= 0:
		return zerolog.InfoLevel
	case band == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func (l Logger) emit(band int, msg string) {
	if band > l.verbosity {
		return
	}
	ev := l.zl.WithLevel(bandLevel(band))
	if l.verbosity >= 1 {
		ev = ev.Str("band", bandNames[band])
	}
	ev.Msg(l.prefix + msg)
}

// Info emits at band 0 (always shown).
func (l Logger) Info(msg string) { l.emit(0, msg) }

// Infof is the formatted form of Info.
func (l Logger) Infof(format string, args ...interface{}) { l.Info(fmt.Sprintf(format, args...)) }

// Verbose emits at band 1.
func (l Logger) Verbose(msg string) { l.emit(1, msg) }

// Debug emits at band 2.
func (l Logger) Debug(msg string) { l.emit(2, msg) }

// Debugf is the formatted form of Debug.
func (l Logger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }

// Debug2 emits at band 3.
func (l Logger) Debug2(msg string) { l.emit(3, msg) }

// Debug3 emits at band 4.
func (l Logger) Debug3(msg string) { l.emit(4, msg) }

// SSHVerbose emits at band 5.
func (l Logger) SSHVerbose(msg string) { l.emit(5, msg) }

// ShellTrace emits at band 6.
func (l Logger) ShellTrace(msg string) { l.emit(6, msg) }

// SSHExtraVerbose emits at band 7.
func (l Logger) SSHExtraVerbose(msg string) { l.emit(7, msg) }

// Warn always emits, regardless of verbosity.
func (l Logger) Warn(msg string) { l.zl.Warn().Msg(l.prefix + msg) }

// Warnf is the formatted form of Warn.
func (l Logger) Warnf(format string, args ...interface{}) { l.Warn(fmt.Sprintf(format, args...)) }

// Error always emits, regardless of verbosity.
func (l Logger) Error(err error, msg string) { l.zl.Error().Err(err).Msg(l.prefix + msg) }

// NoOp logs a suppressed mutating command under dry-run.
func (l Logger) NoOp(description string) { l.Info("NO-OP " + description) }

// Tick reports one iteration of a polling wait: a bare progress dot at
// verbosity 0, or the observed value as a VERBOSE line otherwise.
func (l Logger) Tick(observed string) {
	if l.verbosity == 0 {
		fmt.Fprint(l.dotWriter, ".")
		return
	}
	l.Verbose("waiting, observed=" + observed)
}

// TickDone prints the trailing newline after a dot stream, if one was used.
func (l Logger) TickDone() {
	if l.verbosity == 0 {
		fmt.Fprintln(l.dotWriter)
	}
}
