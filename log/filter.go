package log

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// OrchestratorLoggers are logger-name prefixes used by the workflow
// orchestrator client. Their info and debug chatter is demoted to
// TraceLevel; warnings and errors pass through untouched.
var OrchestratorLoggers = []string{"orchestrator"}

// FilterOrchestrator wraps core so that entries from OrchestratorLoggers
// below warn level are only written by sinks enabled at TraceLevel.
func FilterOrchestrator(core zapcore.Core) zapcore.Core {
	return &orchestratorFilter{Core: core}
}

type orchestratorFilter struct {
	zapcore.Core
}

func (c *orchestratorFilter) With(fields []zapcore.Field) zapcore.Core {
	return &orchestratorFilter{Core: c.Core.With(fields)}
}

func (c *orchestratorFilter) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ent.Level < zapcore.WarnLevel && isOrchestrator(ent.LoggerName) {
		ent.Level = TraceLevel
	}
	return c.Core.Check(ent, ce)
}

func isOrchestrator(name string) bool {
	for _, prefix := range OrchestratorLoggers {
		if name == prefix || strings.HasPrefix(name, prefix+".") {
			return true
		}
	}
	return false
}
