package badgerstore

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(f string, args ...interface{}) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (b badgerLogger) Warningf(f string, args ...interface{}) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (b badgerLogger) Infof(f string, args ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(f, args...)))
}

func (b badgerLogger) Debugf(f string, args ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(f, args...)))
}
