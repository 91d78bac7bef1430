// Package logging implements the logging subsystem of Vigil. Loggers are
// go-kit compatible and support having their level and format updated at
// runtime.
package logging

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"
)

// Options is the set of options used to construct or update a Logger.
type Options struct {
	Level  Level  `yaml:"level,omitempty"`
	Format Format `yaml:"format,omitempty"`
}

// DefaultOptions holds defaults for creating a Logger.
var DefaultOptions = Options{
	Level:  LevelDefault,
	Format: FormatDefault,
}

// Level represents how verbose logging should be.
type Level string

// Supported log levels.
const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"

	LevelDefault = LevelInfo
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (ll *Level) UnmarshalText(text []byte) error {
	switch Level(text) {
	case "":
		*ll = LevelDefault
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		*ll = Level(text)
	default:
		return fmt.Errorf("unrecognized log level %q", string(text))
	}
	return nil
}

// Filter returns the go-kit level filter option for the level.
func (ll Level) Filter() kitlevel.Option {
	switch ll {
	case LevelDebug:
		return kitlevel.AllowDebug()
	case LevelInfo:
		return kitlevel.AllowInfo()
	case LevelWarn:
		return kitlevel.AllowWarn()
	case LevelError:
		return kitlevel.AllowError()
	default:
		return LevelDefault.Filter()
	}
}

// Format represents a text format to use when writing logs.
type Format string

// Supported log formats.
const (
	FormatLogfmt Format = "logfmt"
	FormatJSON   Format = "json"

	FormatDefault = FormatLogfmt
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	switch Format(text) {
	case "":
		*f = FormatDefault
	case FormatLogfmt, FormatJSON:
		*f = Format(text)
	default:
		return fmt.Errorf("unrecognized log format %q", string(text))
	}
	return nil
}

// Logger is the logging subsystem of Vigil. It supports being dynamically
// updated at runtime.
type Logger struct {
	inner io.Writer // Writer passed to New.

	mut  sync.RWMutex
	opts Options
	inst log.Logger // Instantiated logger with level filter and timestamps.
}

var _ log.Logger = (*Logger)(nil)

// New creates a new Logger with the given options.
func New(w io.Writer, o Options) (*Logger, error) {
	l := &Logger{inner: log.NewSyncWriter(w)}
	if err := l.Update(o); err != nil {
		return nil, err
	}
	return l, nil
}

// NewNop returns a logger that does nothing.
func NewNop() *Logger {
	l, _ := New(io.Discard, DefaultOptions)
	return l
}

// Update re-configures the level and format of the logger. Safe to call
// concurrently with Log.
func (l *Logger) Update(o Options) error {
	var inst log.Logger
	switch o.Format {
	case FormatLogfmt, "":
		inst = log.NewLogfmtLogger(l.inner)
	case FormatJSON:
		inst = log.NewJSONLogger(l.inner)
	default:
		return fmt.Errorf("unrecognized log format %q", o.Format)
	}

	inst = kitlevel.NewFilter(inst, o.Level.Filter())
	inst = log.With(inst, "ts", log.DefaultTimestampUTC)

	l.mut.Lock()
	defer l.mut.Unlock()
	l.opts = o
	l.inst = inst
	return nil
}

// Log implements log.Logger.
func (l *Logger) Log(kvps ...interface{}) error {
	l.mut.RLock()
	inst := l.inst
	l.mut.RUnlock()
	return inst.Log(kvps...)
}
