package model

import "time"

// FileAction represents the kind of filesystem change observed for a path.
type FileAction string

const (
	ActionCreated  FileAction = "created"
	ActionModified FileAction = "modified"
	ActionDeleted  FileAction = "deleted"
)

// Valid reports whether the action is one of the known kinds.
func (a FileAction) Valid() bool {
	switch a {
	case ActionCreated, ActionModified, ActionDeleted:
		return true
	default:
		return false
	}
}

// Severity levels ordered from least to most urgent.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category classifies what a verdict believes the observed activity is.
type Category string

const (
	CategoryBenign     Category = "Benign"
	CategorySuspicious Category = "Suspicious"
	CategoryRansomware Category = "Ransomware"
	CategoryRaaS       Category = "RaaS"
)

// FileChangeEvent is a single observed filesystem change. It is built once
// by the watcher (or the file-events API) and consumed exactly once by the
// detection engine.
type FileChangeEvent struct {
	Path       string     `json:"path"`
	Action     FileAction `json:"action"`
	ObservedAt time.Time  `json:"observed_at"`
}

// Verdict is the detection engine's evaluation of one FileChangeEvent.
// FME is the sampled Shannon entropy of the file in bits/byte, ABT the
// adaptive burst threshold at evaluation time.
type Verdict struct {
	FME          float64  `json:"fme"`
	ABT          float64  `json:"abt"`
	IsRansomware bool     `json:"is_ransomware"`
	IsSuspicious bool     `json:"is_suspicious"`
	Severity     Severity `json:"severity"`
	Category     Category `json:"category"`
	Reasons      []string `json:"reasons"`
}

// AlertWorthy reports whether the verdict should produce an alert record.
func (v Verdict) AlertWorthy() bool {
	return v.IsRansomware || v.IsSuspicious
}
