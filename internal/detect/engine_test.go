package detect

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ransomguard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// distinctByteValues returns data whose histogram covers exactly n byte
// values with equal frequency, giving entropy log2(n).
func distinctByteValues(n, repeat int) []byte {
	data := make([]byte, 0, n*repeat)
	for i := 0; i < repeat; i++ {
		for b := 0; b < n; b++ {
			data = append(data, byte(b))
		}
	}
	return data
}

func TestEvaluateHighEntropy(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(DefaultConfig(), testLogger(), nil)

	path := writeTestFile(t, dir, "payload.bin", distinctByteValues(256, 64))
	verdict := engine.Evaluate(path, model.ActionCreated)

	assert.True(t, verdict.IsRansomware)
	assert.Equal(t, model.SeverityCritical, verdict.Severity)
	assert.Equal(t, model.CategoryRansomware, verdict.Category)
	assert.True(t, hasReasonPrefix(verdict.Reasons, "high entropy"))
	assert.True(t, verdict.AlertWorthy())
}

func TestEvaluateMediumEntropy(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(DefaultConfig(), testLogger(), nil)

	// 128 distinct values: entropy 7.0, between the medium and high bars.
	path := writeTestFile(t, dir, "archive.bin", distinctByteValues(128, 64))
	verdict := engine.Evaluate(path, model.ActionCreated)

	assert.False(t, verdict.IsRansomware)
	assert.True(t, verdict.IsSuspicious)
	assert.Equal(t, model.SeverityMedium, verdict.Severity)
	assert.Equal(t, model.CategorySuspicious, verdict.Category)
	assert.True(t, hasReasonPrefix(verdict.Reasons, "medium entropy"))
}

func TestEvaluateBenignFile(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(DefaultConfig(), testLogger(), nil)

	path := writeTestFile(t, dir, "notes.txt", bytes.Repeat([]byte("aaaa"), 512))
	verdict := engine.Evaluate(path, model.ActionCreated)

	assert.False(t, verdict.AlertWorthy())
	assert.Equal(t, model.SeverityInfo, verdict.Severity)
	assert.Equal(t, model.CategoryBenign, verdict.Category)
	assert.Empty(t, verdict.Reasons)
}

func TestEvaluateSuspiciousExtension(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		file string
	}{
		{name: "locked", file: "document.docx.locked"},
		{name: "enc", file: "photo.jpg.enc"},
		{name: "ransom uppercase", file: "backup.RANSOM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(DefaultConfig(), testLogger(), nil)
			// Low-entropy content: the extension alone must flag it.
			path := writeTestFile(t, dir, tt.file, bytes.Repeat([]byte{'x'}, 1024))
			verdict := engine.Evaluate(path, model.ActionCreated)

			assert.True(t, verdict.IsSuspicious)
			assert.True(t, hasReasonPrefix(verdict.Reasons, "suspicious extension"))
			assert.True(t, verdict.AlertWorthy())
		})
	}
}

func TestEvaluateOverwriteOrder(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(DefaultConfig(), testLogger(), nil)

	// Maximum-entropy content on a modified file: the high-entropy rule
	// assigns critical first, then the rapid-encryption rule overwrites it
	// with high. The documented order is intentional; this pins it.
	path := writeTestFile(t, dir, "report.xlsx", distinctByteValues(256, 64))
	verdict := engine.Evaluate(path, model.ActionModified)

	assert.True(t, verdict.IsRansomware)
	assert.Equal(t, model.SeverityHigh, verdict.Severity)
	assert.Equal(t, model.CategoryRansomware, verdict.Category)
	assert.True(t, hasReasonPrefix(verdict.Reasons, "high entropy"))
	assert.Contains(t, verdict.Reasons, "rapid encryption pattern")
}

func TestEvaluateRaaSPattern(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(DefaultConfig(), testLogger(), nil)

	// Ten distinct high-entropy files land in the window in quick
	// succession; the cross-file check must then classify RaaS.
	var verdict model.Verdict
	for i := 0; i < 10; i++ {
		path := writeTestFile(t, dir, fmt.Sprintf("file%d.bin", i), distinctByteValues(256, 64))
		verdict = engine.Evaluate(path, model.ActionCreated)
	}

	assert.True(t, verdict.IsRansomware)
	assert.Equal(t, model.SeverityCritical, verdict.Severity)
	assert.Equal(t, model.CategoryRaaS, verdict.Category)
	assert.Contains(t, verdict.Reasons, "RaaS pattern detected")
}

func TestEvaluateMissingFile(t *testing.T) {
	engine := NewEngine(DefaultConfig(), testLogger(), nil)

	verdict := engine.Evaluate("/nonexistent/path/file.txt", model.ActionDeleted)

	assert.Equal(t, 0.0, verdict.FME)
	assert.False(t, verdict.AlertWorthy())
}

func TestEngineNotifierFanOut(t *testing.T) {
	engine := NewEngine(DefaultConfig(), testLogger(), nil)

	received := make([]model.Alert, 0)
	engine.RegisterNotifier(notifierFunc(func(a model.Alert) error {
		received = append(received, a)
		return nil
	}))

	alert := model.Alert{Host: "host-1", Path: "/data/x.enc", Severity: model.SeverityHigh, Category: model.CategoryRansomware}
	engine.EmitAlert(alert)

	require.Len(t, received, 1)
	assert.Equal(t, "/data/x.enc", received[0].Path)

	select {
	case got := <-engine.GetAlertChannel():
		assert.Equal(t, model.SeverityHigh, got.Severity)
	default:
		t.Fatal("expected alert on channel")
	}
}

type notifierFunc func(model.Alert) error

func (f notifierFunc) SendAlert(alert model.Alert) error { return f(alert) }

func hasReasonPrefix(reasons []string, prefix string) bool {
	for _, reason := range reasons {
		if strings.HasPrefix(reason, prefix) {
			return true
		}
	}
	return false
}
