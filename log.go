package ern

import (
	"fmt"
	"log"
)

// TraceLevel controls how much the connection code logs. The connection
// compares its configured level against these constants before each of
// its gated log calls; the Logger implementation does no filtering of
// its own. The handshake's Trace lines are not gated and are emitted at
// every level.
type TraceLevel int

const (
	// TraceOff turns off the connection code's gated logging.
	TraceOff TraceLevel = 0
	// TraceHandshake logs connection failures, at Warn.
	TraceHandshake TraceLevel = 1
	// TraceControl additionally logs every control tuple written or
	// dispatched.
	TraceControl TraceLevel = 2
	// TraceFrame additionally logs ticks sent and received.
	TraceFrame TraceLevel = 3
	// TraceAll enables everything above; nothing is gated on it alone.
	TraceAll TraceLevel = 4
)

// A Logger is the logging interface used throughout this module.
//
// Info is for situations that are not problems: a node finished
// resolving a peer's EPMD entry, a mailbox was registered under a
// name.
//
// Warn is for situations that are problematic but expected to resolve
// themselves without direct intervention: a connection to a peer was
// lost, a $gen_cast bad-cookie notice was sent to a misconfigured peer.
//
// Error is for situations that prevented a connection or operation
// from succeeding and will most likely not resolve themselves without
// intervention: a handshake failed because of a cookie mismatch, a
// peer offered a distribution version below the minimum this node
// accepts.
//
// Trace is for per-frame and per-control-message detail; callers are
// expected to gate their own verbosity against a TraceLevel, since the
// Logger itself has no opinion on what level is "on".
//
// You can wrap a standard *log.Logger with WrapLogger.
type Logger interface {
	Trace(interface{}, ...interface{})
	Info(interface{}, ...interface{})
	Warn(interface{}, ...interface{})
	Error(interface{}, ...interface{})
}

// WrapLogger takes a standard *log.Logger and returns a Logger that
// uses it.
func WrapLogger(l *log.Logger) Logger {
	return wrapLogger{l}
}

type wrapLogger struct {
	logger *log.Logger
}

func (sl wrapLogger) Trace(s interface{}, vals ...interface{}) {
	sl.logger.Output(2, fmt.Sprintf("[TRAC] ern: "+fmt.Sprintf("%v", s), vals...))
}

func (sl wrapLogger) Info(s interface{}, vals ...interface{}) {
	sl.logger.Output(2, fmt.Sprintf("[INFO] ern: "+fmt.Sprintf("%v", s), vals...))
}

func (sl wrapLogger) Warn(s interface{}, vals ...interface{}) {
	sl.logger.Output(2, fmt.Sprintf("[WARN] ern: "+fmt.Sprintf("%v", s), vals...))
}

func (sl wrapLogger) Error(s interface{}, vals ...interface{}) {
	sl.logger.Output(2, fmt.Sprintf("[ERR] ern: "+fmt.Sprintf("%v", s), vals...))
}

// StdLogger is a Logger that uses the log.Output function from the
// standard logging package.
var StdLogger = stdLogger{}

type stdLogger struct{}

func (sl stdLogger) Trace(s interface{}, vals ...interface{}) {
	log.Printf("[TRAC] ern: "+fmt.Sprintf("%v", s), vals...)
}
func (sl stdLogger) Info(s interface{}, vals ...interface{}) {
	log.Printf("[INFO] ern: "+fmt.Sprintf("%v", s), vals...)
}
func (sl stdLogger) Warn(s interface{}, vals ...interface{}) {
	log.Printf("[WARN] ern: "+fmt.Sprintf("%v", s), vals...)
}
func (sl stdLogger) Error(s interface{}, vals ...interface{}) {
	log.Printf("[ERR] ern: "+fmt.Sprintf("%v", s), vals...)
}

// NullLogger implements Logger and throws every message away.
var NullLogger = nullLogger{}

type nullLogger struct{}

func (nl nullLogger) Trace(s interface{}, vals ...interface{}) {}
func (nl nullLogger) Info(s interface{}, vals ...interface{})  {}
func (nl nullLogger) Warn(s interface{}, vals ...interface{})  {}
func (nl nullLogger) Error(s interface{}, vals ...interface{}) {}
