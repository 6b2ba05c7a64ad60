// Package eventlog is the pipexec event log (§4.6): a dual-channel
// (text / JSON), dual-target (fd / syslog) structured log built on
// go.uber.org/zap's zapcore. Either channel, both, or neither may be active; a
// disabled channel's writes are simply no-ops, matching the original
// C implementation's "if(g_log_fd==-1) return" early-out.
package eventlog

import (
	"fmt"
	"log/syslog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

// EventID is a coarse internal event category, logged as a stable string
// so text and JSON consumers can grep/filter on it. §4.6 names "internal",
// "command_pid", "child_exit" as examples, not an exhaustive list.
type EventID int

const (
	EventInternal EventID = iota
	EventStartup
	EventParse
	EventPipe
	EventFork
	EventCommandPID
	EventWiring
	EventChildExit
	EventSignal
	EventRestart
	EventTerminate
	EventPidfile
)

func (id EventID) String() string {
	switch id {
	case EventStartup:
		return "startup"
	case EventParse:
		return "parse"
	case EventPipe:
		return "pipe"
	case EventFork:
		return "fork"
	case EventCommandPID:
		return "command_pid"
	case EventWiring:
		return "wiring"
	case EventChildExit:
		return "child_exit"
	case EventSignal:
		return "signal"
	case EventRestart:
		return "restart"
	case EventTerminate:
		return "terminate"
	case EventPidfile:
		return "pidfile"
	default:
		return "internal"
	}
}

// Severity is one of the four levels §4.6 names.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) zapLevel() zapcore.Level {
	switch s {
	case SeverityDebug:
		return zapcore.DebugLevel
	case SeverityWarning:
		return zapcore.WarnLevel
	case SeverityError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Field is one key/value pair attached to an event.
type Field struct{ Key, Value string }

// KV builds a Field. Kept as a free function (rather than a struct literal
// at every call site) so call sites read like the original's
// `logging("msg", "key", value)` varargs.
func KV(key, value string) Field { return Field{Key: key, Value: value} }

// Logger is the dual-channel event sink. Nil-safe: a *Logger with no
// channels configured simply drops every event (this is what New returns
// for an empty Config), exactly mirroring the C original's default.
type Logger struct {
	mu    sync.Mutex
	core  zapcore.Core
	pid   int
	cycle string
}

// Target describes one channel's destination: either a raw fd number
// (given as its decimal string) or "s" for syslog, matching the CLI's
// "-l <fd|s>" / "-j <fd|s>" option grammar (§6).
type Target = string

// Config selects which of the two channels (§4.6) are active and where
// each writes.
type Config struct {
	Text Target // "" disables the text channel
	JSON Target // "" disables the JSON channel
}

// levelEncoder renders zap's levels using the four words §4.6 names,
// instead of zap's own "warn" abbreviation.
func levelEncoder(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch lvl {
	case zapcore.DebugLevel:
		enc.AppendString("debug")
	case zapcore.InfoLevel:
		enc.AppendString("info")
	case zapcore.WarnLevel:
		enc.AppendString("warning")
	case zapcore.ErrorLevel:
		enc.AppendString("error")
	default:
		enc.AppendString(lvl.String())
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		NameKey:        "logger",
		MessageKey:     "message",
		StacktraceKey:  "",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// New builds a Logger from Config. Either, both, or neither channel may be
// enabled; an error here means a bad -l/-j argument or, for the "s" target,
// a failure to connect to syslog.
func New(cfg Config) (*Logger, error) {
	var cores []zapcore.Core

	if cfg.Text != "" {
		ws, err := openTarget(cfg.Text)
		if err != nil {
			return nil, fmt.Errorf("text log target %q: %w", cfg.Text, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), ws, zapcore.DebugLevel))
	}

	if cfg.JSON != "" {
		ws, err := openTarget(cfg.JSON)
		if err != nil {
			return nil, fmt.Errorf("json log target %q: %w", cfg.JSON, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, zapcore.DebugLevel))
	}

	var core zapcore.Core
	switch len(cores) {
	case 0:
		core = nil
	case 1:
		core = cores[0]
	default:
		core = zapcore.NewTee(cores...)
	}

	return &Logger{core: core, pid: os.Getpid()}, nil
}

// openTarget resolves a "-l"/"-j" argument into a WriteSyncer: "s" means
// syslog (DAEMON facility, pid included, matching §4.6), anything else is
// parsed as a decimal fd number.
func openTarget(target string) (zapcore.WriteSyncer, error) {
	if target == "s" {
		w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "pipexec")
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(w), nil
	}

	fd, err := strconv.Atoi(target)
	if err != nil {
		return nil, fmt.Errorf("not a fd number or 's': %w", err)
	}
	f := os.NewFile(uintptr(fd), "logfd"+target)
	return zapcore.AddSync(&boundedWriter{w: f}), nil
}

// boundedWriter caps a single event emission to a ~4KiB buffer (§4.6) and
// silently drops write failures instead of propagating them, so a closed
// or unreadable log fd can never block or crash the supervisor.
type boundedWriter struct {
	w *os.File
}

const maxEventBytes = 4096

func (b *boundedWriter) Write(p []byte) (int, error) {
	if len(p) > maxEventBytes {
		p = p[:maxEventBytes]
	}
	_, _ = b.w.Write(p) // failures are silently dropped, per §4.6
	return len(p), nil
}

// NewCycle tags every subsequent event with a fresh launch-cycle id (the
// GLOSSARY's "launch cycle") so a restarting graph's logs can be
// correlated per run across both channels.
func (l *Logger) NewCycle() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cycle = uuid.New().String()
	return l.cycle
}

// event is the shared path for Debug/Info/Warn/Error.
func (l *Logger) event(id EventID, typ string, sev Severity, msg string, kvs []Field) {
	if l == nil || l.core == nil {
		return
	}

	l.mu.Lock()
	cycle := l.cycle
	l.mu.Unlock()

	fields := make([]zapcore.Field, 0, len(kvs)+4)
	fields = append(fields,
		zapcore.Field{Type: zapcore.Int64Type, Key: "pipexec_pid", Integer: int64(l.pid)},
		zapcore.Field{Type: zapcore.StringType, Key: "id", String: id.String()},
		zapcore.Field{Type: zapcore.StringType, Key: "type", String: typ},
	)
	if cycle != "" {
		fields = append(fields, zapcore.Field{Type: zapcore.StringType, Key: "cycle", String: cycle})
	}
	for _, kv := range kvs {
		fields = append(fields, zapcore.Field{Type: zapcore.StringType, Key: kv.Key, String: kv.Value})
	}

	ent := zapcore.Entry{Level: sev.zapLevel(), Time: time.Now(), Message: msg}
	_ = l.core.Write(ent, fields) // best-effort; §4.6 drops failures silently
}

func (l *Logger) Debug(id EventID, typ, msg string, kvs ...Field) {
	l.event(id, typ, SeverityDebug, msg, kvs)
}

func (l *Logger) Info(id EventID, typ, msg string, kvs ...Field) {
	l.event(id, typ, SeverityInfo, msg, kvs)
}

func (l *Logger) Warn(id EventID, typ, msg string, kvs ...Field) {
	l.event(id, typ, SeverityWarning, msg, kvs)
}

func (l *Logger) Error(id EventID, typ, msg string, kvs ...Field) {
	l.event(id, typ, SeverityError, msg, kvs)
}

// DebugDump attaches a human-inspectable spew.Sdump of v to a debug event;
// used once at startup to dump the parsed graph structure.
func (l *Logger) DebugDump(id EventID, typ, label string, v any) {
	if l == nil || l.core == nil {
		return
	}
	l.Debug(id, typ, label+"\n"+spew.Sdump(v))
}
