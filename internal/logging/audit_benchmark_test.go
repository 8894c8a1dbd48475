package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditWritesJSONLines(t *testing.T) {
	tempDir := t.TempDir()
	resetLogging(t)
	defer resetLogging(t)

	if err := Initialize(tempDir, Settings{DebugMode: true}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if err := InitAudit(); err != nil {
		t.Fatalf("Failed to init audit: %v", err)
	}

	a := AuditWithConversation("conv-9")
	a.Escalation(2, "suicide_intent", "CRITICAL", []string{"negation:want to die"})
	a.ModeChange(2, "grief", "safety", true)
	CloseAudit()

	entries, err := os.ReadDir(filepath.Join(tempDir, "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	var content string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_audit.log") {
			data, _ := os.ReadFile(filepath.Join(tempDir, "logs", e.Name()))
			content = string(data)
		}
	}
	if !strings.Contains(content, `"event":"escalation"`) || !strings.Contains(content, `"conv":"conv-9"`) {
		t.Fatalf("missing escalation event:\n%s", content)
	}
	if !strings.Contains(content, `"event":"mode_change"`) {
		t.Fatalf("missing mode change event:\n%s", content)
	}
}

func BenchmarkAuditDisabled(b *testing.B) {
	applySettings(Settings{})
	a := AuditWithConversation("bench")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.TurnProcessed(i, "general", "STANDARD", "normal")
	}
}
