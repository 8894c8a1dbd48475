package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names a safety-relevant event in a conversation.
type AuditEventType string

const (
	AuditConversationStart AuditEventType = "conversation_start"
	AuditTurnProcessed     AuditEventType = "turn_processed"
	AuditEscalation        AuditEventType = "escalation"
	AuditModeChange        AuditEventType = "mode_change"
	AuditModeRejected      AuditEventType = "mode_rejected"
	AuditTemplateFallback  AuditEventType = "template_fallback"
	AuditCatalogReload     AuditEventType = "catalog_reload"
	AuditGeneratorFallback AuditEventType = "generator_fallback"
)

// AuditEvent is one JSON line in the audit log. It never carries message text.
type AuditEvent struct {
	Timestamp      int64                  `json:"ts"`
	EventType      AuditEventType         `json:"event"`
	ConversationID string                 `json:"conv,omitempty"`
	TurnIndex      int                    `json:"turn,omitempty"`
	Category       string                 `json:"category,omitempty"`
	Tier           string                 `json:"tier,omitempty"`
	Mode           string                 `json:"mode,omitempty"`
	Success        bool                   `json:"success"`
	Message        string                 `json:"msg,omitempty"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger scopes audit events to a conversation.
type AuditLogger struct {
	conversationID string
}

// InitAudit opens the dated audit log. No-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	loggersMu.RLock()
	dir := logsDir
	loggersMu.RUnlock()
	if dir == "" {
		return fmt.Errorf("logging not initialized")
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(dir, fmt.Sprintf("%s_audit.log", date))
	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns an unscoped audit logger.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithConversation returns an audit logger bound to a conversation.
func AuditWithConversation(conversationID string) *AuditLogger {
	return &AuditLogger{conversationID: conversationID}
}

// Log writes an event as one JSON line.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.ConversationID == "" {
		event.ConversationID = a.conversationID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// TurnProcessed records the outcome of one turn.
func (a *AuditLogger) TurnProcessed(turn int, category, tier, mode string) {
	a.Log(AuditEvent{
		EventType: AuditTurnProcessed,
		TurnIndex: turn,
		Category:  category,
		Tier:      tier,
		Mode:      mode,
		Success:   true,
	})
}

// Escalation records a turn that raised the safety posture.
func (a *AuditLogger) Escalation(turn int, category, tier string, guards []string) {
	a.Log(AuditEvent{
		EventType: AuditEscalation,
		TurnIndex: turn,
		Category:  category,
		Tier:      tier,
		Success:   true,
		Fields:    map[string]interface{}{"guards": guards},
	})
}

// ModeChange records an applied or rejected mode transition.
func (a *AuditLogger) ModeChange(turn int, from, to string, legal bool) {
	event := AuditModeChange
	if !legal {
		event = AuditModeRejected
	}
	a.Log(AuditEvent{
		EventType: event,
		TurnIndex: turn,
		Mode:      to,
		Success:   legal,
		Message:   fmt.Sprintf("%s -> %s", from, to),
	})
}

// TemplateFallback records that a rendered template was replaced by a fallback.
func (a *AuditLogger) TemplateFallback(turn int, category string, reasons []string) {
	a.Log(AuditEvent{
		EventType: AuditTemplateFallback,
		TurnIndex: turn,
		Category:  category,
		Success:   false,
		Fields:    map[string]interface{}{"reasons": reasons},
	})
}

// CatalogReload records a hot reload attempt.
func (a *AuditLogger) CatalogReload(source, version string, err error) {
	event := AuditEvent{
		EventType: AuditCatalogReload,
		Success:   err == nil,
		Message:   source,
		Fields:    map[string]interface{}{"version": version},
	}
	if err != nil {
		event.Fields["error"] = err.Error()
	}
	a.Log(event)
}

// GeneratorFallback records that a generated reply was rejected or failed.
func (a *AuditLogger) GeneratorFallback(turn int, reason string) {
	a.Log(AuditEvent{
		EventType: AuditGeneratorFallback,
		TurnIndex: turn,
		Success:   false,
		Message:   reason,
	})
}
