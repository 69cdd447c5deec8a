package detect

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ransomguard/internal/metrics"
	"ransomguard/internal/model"

	"github.com/sirupsen/logrus"
)

// Notifier delivers an alert to one output channel (log, Telegram, ...).
type Notifier interface {
	SendAlert(alert model.Alert) error
}

// Config holds the detection thresholds.
type Config struct {
	WindowSize           time.Duration
	BurstMultiplier      float64
	SampleSize           int
	HighEntropy          float64
	MediumEntropy        float64
	RapidEntropy         float64
	RaaSEntropy          float64
	RaaSRecentPaths      int
	RaaSMinHighEntropy   int
	SuspiciousExtensions []string
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		WindowSize:           DefaultWindowSize,
		BurstMultiplier:      DefaultBurstMultiplier,
		SampleSize:           DefaultSampleSize,
		HighEntropy:          7.5,
		MediumEntropy:        6.0,
		RapidEntropy:         6.5,
		RaaSEntropy:          7.0,
		RaaSRecentPaths:      10,
		RaaSMinHighEntropy:   5,
		SuspiciousExtensions: []string{".enc", ".locked", ".crypted", ".crypto", ".ransom"},
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.BurstMultiplier <= 0 {
		c.BurstMultiplier = d.BurstMultiplier
	}
	if c.SampleSize <= 0 {
		c.SampleSize = d.SampleSize
	}
	if c.HighEntropy <= 0 {
		c.HighEntropy = d.HighEntropy
	}
	if c.MediumEntropy <= 0 {
		c.MediumEntropy = d.MediumEntropy
	}
	if c.RapidEntropy <= 0 {
		c.RapidEntropy = d.RapidEntropy
	}
	if c.RaaSEntropy <= 0 {
		c.RaaSEntropy = d.RaaSEntropy
	}
	if c.RaaSRecentPaths <= 0 {
		c.RaaSRecentPaths = d.RaaSRecentPaths
	}
	if c.RaaSMinHighEntropy <= 0 {
		c.RaaSMinHighEntropy = d.RaaSMinHighEntropy
	}
	if len(c.SuspiciousExtensions) == 0 {
		c.SuspiciousExtensions = d.SuspiciousExtensions
	}
}

// Engine evaluates file change events for ransomware indicators and fans
// alerts out to registered notifiers.
type Engine struct {
	cfg            Config
	entropy        *EntropyEstimator
	burst          *BurstTracker
	suspiciousExts map[string]struct{}
	logger         *logrus.Logger
	metrics        *metrics.Metrics

	mu           sync.RWMutex
	notifiers    []Notifier
	alertChannel chan model.Alert
}

// NewEngine creates a detection engine. metrics may be nil.
func NewEngine(cfg Config, logger *logrus.Logger, m *metrics.Metrics) *Engine {
	cfg.applyDefaults()

	suspiciousExts := make(map[string]struct{}, len(cfg.SuspiciousExtensions))
	for _, ext := range cfg.SuspiciousExtensions {
		suspiciousExts[strings.ToLower(ext)] = struct{}{}
	}

	return &Engine{
		cfg:            cfg,
		entropy:        NewEntropyEstimator(cfg.SampleSize, logger, m),
		burst:          NewBurstTracker(cfg.WindowSize, cfg.BurstMultiplier),
		suspiciousExts: suspiciousExts,
		logger:         logger,
		metrics:        m,
		notifiers:      make([]Notifier, 0),
		alertChannel:   make(chan model.Alert, 100),
	}
}

// RegisterNotifier adds an alert output channel.
func (e *Engine) RegisterNotifier(notifier Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifiers = append(e.notifiers, notifier)
}

// Evaluate runs the detection cascade for one file change event. Each rule
// fires in a fixed order and appends its reason; severity and category are
// assigned in source order, matching the documented overwrite behavior.
// Evaluate has no error path: internal failures degrade individual signals
// (entropy reads as 0.0) but the verdict is always produced.
func (e *Engine) Evaluate(path string, action model.FileAction) model.Verdict {
	verdict := model.Verdict{
		Severity: model.SeverityInfo,
		Category: model.CategoryBenign,
		Reasons:  []string{},
	}

	fme := e.entropy.OfFile(path)
	verdict.FME = fme

	e.burst.Record(path)
	verdict.ABT = e.burst.Threshold()

	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := e.suspiciousExts[ext]; ok {
		verdict.IsSuspicious = true
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("suspicious extension: %s", ext))
	}

	if fme > e.cfg.HighEntropy {
		verdict.IsRansomware = true
		verdict.Severity = model.SeverityCritical
		verdict.Category = model.CategoryRansomware
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("high entropy: %.3f", fme))
	} else if fme > e.cfg.MediumEntropy {
		verdict.IsSuspicious = true
		verdict.Severity = model.SeverityMedium
		verdict.Category = model.CategorySuspicious
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("medium entropy: %.3f", fme))
	}

	if e.burst.IsBurst() {
		verdict.IsSuspicious = true
		if verdict.Severity == model.SeverityInfo {
			verdict.Severity = model.SeverityLow
		}
		verdict.Reasons = append(verdict.Reasons, "burst activity detected")
	}

	// A later rule may assign a lower severity over an earlier critical one.
	// The ordering is load-bearing for downstream consumers; do not reorder.
	if action == model.ActionModified && fme > e.cfg.RapidEntropy {
		verdict.IsRansomware = true
		verdict.Severity = model.SeverityHigh
		verdict.Category = model.CategoryRansomware
		verdict.Reasons = append(verdict.Reasons, "rapid encryption pattern")
	}

	if e.checkRaaSPattern() {
		verdict.IsRansomware = true
		verdict.Severity = model.SeverityCritical
		verdict.Category = model.CategoryRaaS
		verdict.Reasons = append(verdict.Reasons, "RaaS pattern detected")
	}

	if e.metrics != nil {
		e.metrics.EventsProcessed.WithLabelValues(string(action)).Inc()
		e.metrics.CurrentABT.Set(verdict.ABT)
		e.metrics.WindowEvents.Set(float64(e.burst.RecentCount()))
	}

	return verdict
}

// checkRaaSPattern looks for many files independently reaching high entropy
// inside the trailing window, suggesting automated mass encryption. It
// re-reads recently seen files, a deliberate cost trade for a rare,
// high-confidence signal.
func (e *Engine) checkRaaSPattern() bool {
	recentHighEntropy := 0
	for _, path := range e.burst.RecentPaths(e.cfg.RaaSRecentPaths) {
		if e.entropy.OfFile(path) > e.cfg.RaaSEntropy {
			recentHighEntropy++
		}
	}
	return recentHighEntropy >= e.cfg.RaaSMinHighEntropy
}

// EmitAlert pushes an alert to the channel and all notifiers. The channel
// write never blocks; a full channel drops the alert with an error log.
func (e *Engine) EmitAlert(alert model.Alert) {
	select {
	case e.alertChannel <- alert:
	default:
		e.logger.Error("Alert channel is full, dropping alert")
	}

	e.mu.RLock()
	notifiers := make([]Notifier, len(e.notifiers))
	copy(notifiers, e.notifiers)
	e.mu.RUnlock()

	for _, notifier := range notifiers {
		if err := notifier.SendAlert(alert); err != nil {
			e.logger.Errorf("Failed to send alert: %v", err)
		}
	}

	if e.metrics != nil {
		e.metrics.AlertsEmitted.WithLabelValues(string(alert.Severity), string(alert.Category)).Inc()
	}
}

// GetAlertChannel exposes the emitted alert stream.
func (e *Engine) GetAlertChannel() <-chan model.Alert {
	return e.alertChannel
}

// Threshold reports the current adaptive burst threshold.
func (e *Engine) Threshold() float64 {
	return e.burst.Threshold()
}

// RecentEvents reports the number of events inside the burst window.
func (e *Engine) RecentEvents() int {
	return e.burst.RecentCount()
}
