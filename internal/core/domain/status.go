package domain

import "strings"

// TargetStatus is the lifecycle state of a target during one build.
type TargetStatus string

const (
	// TargetStatusPending indicates the target has not been invoked yet.
	TargetStatusPending TargetStatus = "pending"
	// TargetStatusRunning indicates the target is executing its dependencies or tasks.
	TargetStatusRunning TargetStatus = "running"
	// TargetStatusDone indicates the target completed and will not run again.
	TargetStatusDone TargetStatus = "done"
	// TargetStatusUpToDate indicates the uptodate checks skipped the target.
	TargetStatusUpToDate TargetStatus = "uptodate"
	// TargetStatusAborted indicates the target failed and was not marked done.
	TargetStatusAborted TargetStatus = "aborted"
)

// IsTerminal reports whether the status ends an invocation.
func (s TargetStatus) IsTerminal() bool {
	switch s {
	case TargetStatusDone, TargetStatusUpToDate, TargetStatusAborted:
		return true
	default:
		return false
	}
}

// ParseTargetStatus converts text to a TargetStatus, defaulting to pending.
func ParseTargetStatus(s string) TargetStatus {
	switch TargetStatus(strings.ToLower(s)) {
	case TargetStatusRunning:
		return TargetStatusRunning
	case TargetStatusDone:
		return TargetStatusDone
	case TargetStatusUpToDate:
		return TargetStatusUpToDate
	case TargetStatusAborted:
		return TargetStatusAborted
	default:
		return TargetStatusPending
	}
}

// LogLevel is the severity of a log message, mirroring the slog levels.
type LogLevel int

const (
	// LogLevelDebug is used for --verbose output.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn is used for recoverable problems.
	LogLevelWarn LogLevel = 4
	// LogLevelError is used for build failures.
	LogLevelError LogLevel = 8
)

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}
