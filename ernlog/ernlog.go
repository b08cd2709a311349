/*

Package ernlog adapts a github.com/sirupsen/logrus logger to the
ern.Logger interface, the same way ern.WrapLogger adapts a standard
*log.Logger. It exists so a program embedding ern can route node
logging through whatever structured logger it already uses elsewhere,
rather than being stuck with ern's bundled StdLogger.

*/
package ernlog

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// NewLogrusLogger returns an ern.Logger backed by l. Trace maps to
// logrus's Debug level.
func NewLogrusLogger(l *logrus.Logger) logrusLogger {
	return logrusLogger{l}
}

type logrusLogger struct {
	l *logrus.Logger
}

func (ll logrusLogger) Trace(s interface{}, vals ...interface{}) {
	ll.l.Debug(fmt.Sprintf(fmt.Sprintf("%v", s), vals...))
}

func (ll logrusLogger) Info(s interface{}, vals ...interface{}) {
	ll.l.Info(fmt.Sprintf(fmt.Sprintf("%v", s), vals...))
}

func (ll logrusLogger) Warn(s interface{}, vals ...interface{}) {
	ll.l.Warn(fmt.Sprintf(fmt.Sprintf("%v", s), vals...))
}

func (ll logrusLogger) Error(s interface{}, vals ...interface{}) {
	ll.l.Error(fmt.Sprintf(fmt.Sprintf("%v", s), vals...))
}
