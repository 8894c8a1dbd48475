package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetLogging(t *testing.T) {
	t.Helper()
	CloseAll()
	CloseAudit()
	applySettings(Settings{})
	loggersMu.Lock()
	logsDir = ""
	loggersMu.Unlock()
}

// TestAllCategoriesLog tests that all categories create log files when debug mode is on
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()
	resetLogging(t)
	defer resetLogging(t)

	if err := Initialize(tempDir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("Expected debug mode to be enabled")
	}

	for _, cat := range AllCategories() {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Triage("Convenience triage log")
	Session("Convenience session log")
	Store("Convenience store log")
	Catalog("Convenience catalog log")
	Generator("Convenience generator log")
	Replay("Convenience replay log")

	CloseAll()

	logsPath := filepath.Join(tempDir, "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range AllCategories() {
		found := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug mode is off
func TestDebugModeDisabled(t *testing.T) {
	tempDir := t.TempDir()
	resetLogging(t)
	defer resetLogging(t)

	if err := Initialize(tempDir, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if IsDebugMode() {
		t.Fatal("Expected debug mode to be disabled")
	}

	Triage("should not be written")
	Get(CategoryStore).Error("should not be written either")

	if _, err := os.Stat(filepath.Join(tempDir, "logs")); !os.IsNotExist(err) {
		t.Fatalf("Expected no logs directory in production mode, got err=%v", err)
	}
}

func TestCategoryFilter(t *testing.T) {
	tempDir := t.TempDir()
	resetLogging(t)
	defer resetLogging(t)

	err := Initialize(tempDir, Settings{
		DebugMode:  true,
		Categories: map[string]bool{"triage": false, "store": true},
	})
	if err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsCategoryEnabled(CategoryTriage) {
		t.Error("triage should be disabled by the category filter")
	}
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("store should be enabled")
	}
	if !IsCategoryEnabled(CategoryReplay) {
		t.Error("categories missing from the filter default to enabled")
	}
}

func TestLevelFiltering(t *testing.T) {
	tempDir := t.TempDir()
	resetLogging(t)
	defer resetLogging(t)

	if err := Initialize(tempDir, Settings{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	Get(CategorySession).Debug("debug-line")
	Get(CategorySession).Info("info-line")
	Get(CategorySession).Warn("warn-line")
	CloseAll()

	content := readCategoryLog(t, tempDir, CategorySession)
	if strings.Contains(content, "debug-line") || strings.Contains(content, "info-line") {
		t.Errorf("lines below warn should be filtered, got:\n%s", content)
	}
	if !strings.Contains(content, "[WARN] warn-line") {
		t.Errorf("expected warn line, got:\n%s", content)
	}
}

func TestJSONFormatWithConversation(t *testing.T) {
	tempDir := t.TempDir()
	resetLogging(t)
	defer resetLogging(t)

	if err := Initialize(tempDir, Settings{DebugMode: true, Level: "debug", JSONFormat: true}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	WithConversation(CategorySession, "conv-1").WithField("turn", 3).Info("turn handled")
	CloseAll()

	content := readCategoryLog(t, tempDir, CategorySession)
	var entry StructuredLogEntry
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		idx := strings.Index(line, "{")
		if idx < 0 {
			continue
		}
		if err := json.Unmarshal([]byte(line[idx:]), &entry); err == nil && entry.ConversationID == "conv-1" {
			break
		}
	}
	if entry.ConversationID != "conv-1" || entry.Message != "turn handled" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Fields["turn"] != float64(3) {
		t.Fatalf("expected turn field, got %v", entry.Fields)
	}
}

func TestStructuredLogHonoursLevel(t *testing.T) {
	tempDir := t.TempDir()
	resetLogging(t)
	defer resetLogging(t)

	if err := Initialize(tempDir, Settings{DebugMode: true, Level: "info"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	Get(CategoryReplay).StructuredLog("debug", "hidden-entry", map[string]interface{}{"turns": 1})
	Get(CategoryReplay).StructuredLog("warn", "shown-entry", map[string]interface{}{"turns": 2})
	CloseAll()

	content := readCategoryLog(t, tempDir, CategoryReplay)
	if strings.Contains(content, "hidden-entry") {
		t.Errorf("debug entry should be filtered at info level, got:\n%s", content)
	}
	if !strings.Contains(content, "[WARN] shown-entry | map[turns:2]") {
		t.Errorf("expected warn entry with fields, got:\n%s", content)
	}
}

func TestDebugConvenienceFunctions(t *testing.T) {
	tempDir := t.TempDir()
	resetLogging(t)
	defer resetLogging(t)

	if err := Initialize(tempDir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	BootError("boot-failure")
	TriageDebug("triage-detail")
	SessionDebug("session-detail")
	CloseAll()

	for cat, want := range map[Category]string{
		CategoryBoot:    "[ERROR] boot-failure",
		CategoryTriage:  "[DEBUG] triage-detail",
		CategorySession: "[DEBUG] session-detail",
	} {
		if content := readCategoryLog(t, tempDir, cat); !strings.Contains(content, want) {
			t.Errorf("%s log missing %q, got:\n%s", cat, want, content)
		}
	}
}

func TestInitializeRequiresDir(t *testing.T) {
	if err := Initialize("", Settings{}); err == nil {
		t.Fatal("expected error for empty data directory")
	}
}

func readCategoryLog(t *testing.T, dataDir string, cat Category) string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dataDir, "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
			data, err := os.ReadFile(filepath.Join(dataDir, "logs", entry.Name()))
			if err != nil {
				t.Fatalf("Failed to read log: %v", err)
			}
			return string(data)
		}
	}
	t.Fatalf("no log file for %s", cat)
	return ""
}
