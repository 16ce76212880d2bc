package models

import "time"

// Level is the severity assigned to an issue by the upstream tracker.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// Status represents the triage state of an issue.
type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusResolved   Status = "resolved"
	StatusIgnored    Status = "ignored"
)

// SessionMetrics holds session-level impact data for an issue. The upstream
// API only returns these for projects with release health enabled, so the
// whole block is optional.
type SessionMetrics struct {
	AffectedUsers    int64   `json:"affected_users"`
	AffectedSessions int64   `json:"affected_sessions"`
	CrashFreeRate    float64 `json:"crash_free_rate"`
}

// Issue is one tracked error group as reported by Sentry. Instances are
// read-only snapshots owned by the request that fetched them.
type Issue struct {
	ID          string
	Title       string
	Culprit     string
	Level       Level
	Status      Status
	FirstSeen   time.Time
	LastSeen    time.Time
	EventCount  int64 // total occurrences ever recorded, non-decreasing
	UserCount   int64 // 0 when the upstream omits per-issue user counts
	Environment string
	Release     string
	Permalink   string
	Sessions    *SessionMetrics // nil when release health data is absent
}
