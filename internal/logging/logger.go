// Package logging provides config-driven categorized file-based logging for the companion.
// Logs are written to <data-dir>/logs/ with separate files per category.
// Logging is controlled by logging.debug_mode in the config - when false, no logs are written.
//
// The triage core (triage, conversation, templates, pipeline) never logs; message
// text is sensitive and only host layers decide what to record.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Boot/initialization
	CategoryTriage    Category = "triage"    // Per-turn triage summaries (never message text)
	CategorySession   Category = "session"   // Conversation lifecycle and turn handling
	CategoryStore     Category = "store"     // SQLite persistence
	CategoryCatalog   Category = "catalog"   // Catalog load, validation and hot reload
	CategoryGenerator Category = "generator" // Model-backed response generation
	CategoryReplay    Category = "replay"    // Transcript replay runs
)

// AllCategories returns every log category.
func AllCategories() []Category {
	return []Category{
		CategoryBoot, CategoryTriage, CategorySession, CategoryStore,
		CategoryCatalog, CategoryGenerator, CategoryReplay,
	}
}

// Settings mirrors config.LoggingConfig to avoid circular imports.
type Settings struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// StructuredLogEntry represents a JSON log entry.
type StructuredLogEntry struct {
	Timestamp      int64                  `json:"ts"`
	Category       string                 `json:"cat"`
	Level          string                 `json:"lvl"`
	Message        string                 `json:"msg"`
	ConversationID string                 `json:"conv,omitempty"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    Settings
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory under dataDir and applies settings.
// When debug mode is off this is a silent no-op and every logger discards.
func Initialize(dataDir string, s Settings) error {
	if dataDir == "" {
		return fmt.Errorf("data directory required")
	}

	CloseAll()
	applySettings(s)

	loggersMu.Lock()
	logsDir = filepath.Join(dataDir, "logs")
	loggersMu.Unlock()

	if !s.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== companion logging initialized ===")
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", s.Level)
	if len(s.Categories) > 0 {
		enabledCount := 0
		for cat, enabled := range s.Categories {
			if enabled {
				enabledCount++
			}
			bootLogger.Debug("Category '%s': %v", cat, enabled)
		}
		bootLogger.Info("Enabled categories: %d/%d", enabledCount, len(s.Categories))
	} else {
		bootLogger.Info("All categories enabled (no category filter)")
	}
	return nil
}

func applySettings(s Settings) {
	configMu.Lock()
	defer configMu.Unlock()

	config = s
	logLevel = levelValue(s.Level)
}

func levelValue(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsJSONFormat returns whether JSON logging is enabled
func IsJSONFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

func currentLevel() int {
	configMu.RLock()
	defer configMu.RUnlock()
	return logLevel
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	dir := logsDir
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level string, minLevel int, msg string, conv string, fields map[string]interface{}) {
	if l.logger == nil || currentLevel() > minLevel {
		return
	}
	if IsJSONFormat() {
		entry := StructuredLogEntry{
			Timestamp:      time.Now().UnixMilli(),
			Category:       string(l.category),
			Level:          level,
			Message:        msg,
			ConversationID: conv,
			Fields:         fields,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	switch {
	case conv != "" && len(fields) > 0:
		l.logger.Printf("[%s] [conv:%s] %s | %v", levelTag(level), conv, msg, fields)
	case conv != "":
		l.logger.Printf("[%s] [conv:%s] %s", levelTag(level), conv, msg)
	case len(fields) > 0:
		l.logger.Printf("[%s] %s | %v", levelTag(level), msg, fields)
	default:
		l.logger.Printf("[%s] %s", levelTag(level), msg)
	}
}

func levelTag(level string) string {
	switch level {
	case "debug":
		return "DEBUG"
	case "warn":
		return "WARN"
	case "error":
		return "ERROR"
	}
	return "INFO"
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write("debug", LevelDebug, fmt.Sprintf(format, args...), "", nil)
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	l.write("info", LevelInfo, fmt.Sprintf(format, args...), "", nil)
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write("warn", LevelWarn, fmt.Sprintf(format, args...), "", nil)
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("error", LevelError, fmt.Sprintf(format, args...), "", nil)
}

// StructuredLog writes a log entry with custom fields, filtered by level like
// the other methods.
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	l.write(level, levelValue(level), msg, "", fields)
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVERSATION TRACING
// =============================================================================

// ConversationLogger provides conversation-scoped logging with a correlation ID.
type ConversationLogger struct {
	logger *Logger
	convID string
	fields map[string]interface{}
}

// WithConversation creates a conversation-scoped logger.
func WithConversation(category Category, conversationID string) *ConversationLogger {
	return &ConversationLogger{
		logger: Get(category),
		convID: conversationID,
		fields: make(map[string]interface{}),
	}
}

// WithField adds a field to the conversation logger
func (c *ConversationLogger) WithField(key string, value interface{}) *ConversationLogger {
	c.fields[key] = value
	return c
}

func (c *ConversationLogger) Debug(format string, args ...interface{}) {
	c.logger.write("debug", LevelDebug, fmt.Sprintf(format, args...), c.convID, c.fields)
}

func (c *ConversationLogger) Info(format string, args ...interface{}) {
	c.logger.write("info", LevelInfo, fmt.Sprintf(format, args...), c.convID, c.fields)
}

func (c *ConversationLogger) Warn(format string, args ...interface{}) {
	c.logger.write("warn", LevelWarn, fmt.Sprintf(format, args...), c.convID, c.fields)
}

func (c *ConversationLogger) Error(format string, args ...interface{}) {
	c.logger.write("error", LevelError, fmt.Sprintf(format, args...), c.convID, c.fields)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Triage logs to the triage category
func Triage(format string, args ...interface{}) {
	Get(CategoryTriage).Info(format, args...)
}

// TriageDebug logs debug to the triage category
func TriageDebug(format string, args ...interface{}) {
	Get(CategoryTriage).Debug(format, args...)
}

// Session logs to the session category
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to the session category
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// SessionWarn logs warning to the session category
func SessionWarn(format string, args ...interface{}) {
	Get(CategorySession).Warn(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Catalog logs to the catalog category
func Catalog(format string, args ...interface{}) {
	Get(CategoryCatalog).Info(format, args...)
}

// CatalogDebug logs debug to the catalog category
func CatalogDebug(format string, args ...interface{}) {
	Get(CategoryCatalog).Debug(format, args...)
}

// CatalogWarn logs warning to the catalog category
func CatalogWarn(format string, args ...interface{}) {
	Get(CategoryCatalog).Warn(format, args...)
}

// Generator logs to the generator category
func Generator(format string, args ...interface{}) {
	Get(CategoryGenerator).Info(format, args...)
}

// GeneratorWarn logs warning to the generator category
func GeneratorWarn(format string, args ...interface{}) {
	Get(CategoryGenerator).Warn(format, args...)
}

// Replay logs to the replay category
func Replay(format string, args ...interface{}) {
	Get(CategoryReplay).Info(format, args...)
}

// ReplayDebug logs debug to the replay category
func ReplayDebug(format string, args ...interface{}) {
	Get(CategoryReplay).Debug(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
