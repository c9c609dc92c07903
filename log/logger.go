// Package log provides structured logging for pipeline stages.
//
// A stage logs to the terminal at a level chosen by its -v count and, once
// its run directory exists, additionally to logs/master_log.txt and
// logs/master_log.json inside it at the most verbose level.
package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/stagekit/iox"
	"github.com/pithecene-io/stagekit/types"
)

// TraceLevel sits below Debug. Orchestrator client chatter is kept at this
// level so it only shows up with -vvv and in the run directory log files.
const TraceLevel = zapcore.DebugLevel - 1

// LevelForVerbosity maps a -v count to a log level.
// Counts above the highest known verbosity clamp to TraceLevel.
func LevelForVerbosity(verbose int) zapcore.Level {
	switch {
	case verbose <= 0:
		return zapcore.WarnLevel
	case verbose == 1:
		return zapcore.InfoLevel
	case verbose == 2:
		return zapcore.DebugLevel
	default:
		return TraceLevel
	}
}

// Logger provides structured logging.
// It is safe for concurrent use; sinks may be attached after construction.
type Logger struct {
	mu    sync.Mutex
	zap   *zap.Logger
	cores []zapcore.Core
	files []*os.File
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		NameKey:     "logger",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: lowercaseLevelEncoder,
		EncodeName:  zapcore.FullNameEncoder,
	}
}

func lowercaseLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}

func capitalLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(l, enc)
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := jsonEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	cfg.EncodeLevel = capitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return cfg
}

// NewTerminal creates a logger writing human-readable lines to w at the
// level selected by verbose.
func NewTerminal(verbose int, w io.Writer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig()),
		zapcore.AddSync(w),
		LevelForVerbosity(verbose),
	)
	return newLogger(core)
}

// NewLoggerWithWriter creates a JSON logger writing to w at trace level.
func NewLoggerWithWriter(w io.Writer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(jsonEncoderConfig()),
		zapcore.AddSync(w),
		TraceLevel,
	)
	return newLogger(core)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return newLogger(zapcore.NewNopCore())
}

func newLogger(core zapcore.Core) *Logger {
	l := &Logger{cores: []zapcore.Core{core}}
	l.rebuild()
	return l
}

func (l *Logger) rebuild() {
	l.zap = zap.New(FilterOrchestrator(zapcore.NewTee(l.cores...)))
}

// AttachRunDirectory adds the run directory file sinks: logs/master_log.txt
// (console format) and logs/master_log.json (one JSON object per line).
// Both record everything down to TraceLevel.
func (l *Logger) AttachRunDirectory(runDir string) error {
	logDir := filepath.Join(runDir, types.LogDir)
	if err := iox.MakeDirTree(logDir); err != nil {
		return err
	}

	text, err := openLogFile(filepath.Join(logDir, types.LogFileName))
	if err != nil {
		return err
	}
	detailed, err := openLogFile(filepath.Join(logDir, types.DetailedLogFileName))
	if err != nil {
		iox.DiscardClose(text)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.files = append(l.files, text, detailed)
	l.cores = append(l.cores,
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), zapcore.AddSync(text), TraceLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(detailed), TraceLevel),
	)
	l.rebuild()
	return nil
}

func openLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, types.FilePerm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Close flushes buffered entries and closes any attached log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.zap.Sync()
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}

// Zap exposes the underlying zap.Logger for libraries that take one.
func (l *Logger) Zap() *zap.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zap
}

// Named returns a child zap.Logger with the given name. The orchestrator
// filter keys off these names.
func (l *Logger) Named(name string) *zap.Logger {
	return l.Zap().Named(name)
}

// Trace logs a message below debug level.
func (l *Logger) Trace(message string, fields map[string]any) {
	if ce := l.Zap().Check(TraceLevel, message); ce != nil {
		ce.Write(zap.Any("fields", fields))
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.Zap().Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.Zap().Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.Zap().Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.Zap().Error(message, zap.Any("fields", fields))
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return l
}
