// Package logging provides the engine's single structured-logging hook,
// backed by logrus. Components log through a *Logger; chaining With* calls
// onto it attaches connectorId, opNr or messageId as structured fields a
// host can filter/aggregate by without parsing text.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel mirrors logrus' levels but keeps callers from importing logrus
// directly, matching spec.md §9's "single logging hook" guidance.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) toLogrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Config holds logger construction options.
type Config struct {
	Level   LogLevel
	Format  string // "text" (default) or "json"
	Output  io.Writer
	NoColor bool
	// Sync forces logrus to flush synchronously; always true in practice
	// since logrus writes synchronously, kept for parity with the host
	// config surface other adapters expose.
	Sync bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, Format: "text", Output: os.Stderr}
}

// Logger wraps a logrus.Entry, accumulating structured fields as With*
// calls are chained.
type Logger struct {
	entry *logrus.Entry
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// NewLogger creates a new root Logger from config (nil uses DefaultConfig).
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	l := logrus.New()
	l.SetLevel(config.Level.toLogrus())
	if config.Output != nil {
		l.SetOutput(config.Output)
	}
	if config.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableColors: config.NoColor, FullTimestamp: true})
	}
	return &Logger{entry: logrus.NewEntry(l)}
}

// Default returns the process-wide default logger, creating it on first use.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// WithConnector scopes subsequent log lines to a connectorId.
func (l *Logger) WithConnector(connectorID uint32) *Logger {
	return &Logger{entry: l.entry.WithField("connector_id", connectorID)}
}

// WithQueue scopes subsequent log lines to a queue's opNr.
func (l *Logger) WithQueue(opNr uint32) *Logger {
	return &Logger{entry: l.entry.WithField("op_nr", opNr)}
}

// WithRequest scopes subsequent log lines to a Request's messageId/action.
func (l *Logger) WithRequest(messageID, action string) *Logger {
	return &Logger{entry: l.entry.WithField("message_id", messageID).WithField("action", action)}
}

// WithError attaches an error to subsequent log lines.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(msg string, args ...any) { l.withArgs(args).Debug(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.withArgs(args).Info(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.withArgs(args).Warn(msg) }
func (l *Logger) Error(msg string, args ...any) { l.withArgs(args).Error(msg) }

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Printf satisfies interfaces.Logger-shaped callers that only know Infof;
// kept for parity with the teacher's convenience alias.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

func (l *Logger) withArgs(args []any) *logrus.Entry {
	e := l.entry
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.WithField(key, args[i+1])
	}
	return e
}

// Global convenience functions operating on Default().
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
