// Package audit provides security audit logging for SIEM consumption.
// Events are logged as structured JSON under the "security_audit" logger name.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a form projection.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventAccessDenied is logged when an actor lacks the level an operation needs.
	EventAccessDenied SecurityEventType = "access_denied"
)

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  SecurityEventType `json:"event_type"`
	OwnerScope string            `json:"owner_scope"`
	TableID    uuid.UUID         `json:"table_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	Details    any               `json:"details"`
	Severity   string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails describes a flagged projection.
type SQLInjectionDetails struct {
	Column      string `json:"column"`
	Expression  string `json:"expression"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
	TableName   string `json:"table_name"`
}

// AccessDeniedDetails describes a refused operation.
type AccessDeniedDetails struct {
	Operation string `json:"operation"`
	Required  string `json:"required"`
	TableName string `json:"table_name,omitempty"`
}

// SecurityAuditor logs security events.
type SecurityAuditor struct {
	logger *zap.Logger
}

func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

func actorID(ctx context.Context) string {
	if a, ok := models.GetActor(ctx); ok {
		return a.UserID
	}
	return ""
}

// LogInjectionAttempt records a rejected form projection at ERROR level.
// Expressions are truncated before logging.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, ownerScope string, tableID uuid.UUID, details SQLInjectionDetails) {
	if len(details.Expression) > 200 {
		details.Expression = details.Expression[:200] + "..."
	}
	event := SecurityEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  EventSQLInjectionAttempt,
		OwnerScope: ownerScope,
		TableID:    tableID,
		UserID:     actorID(ctx),
		Details:    details,
		Severity:   "critical",
	}
	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("owner_scope", ownerScope),
		zap.String("table_id", tableID.String()),
		zap.String("column", details.Column),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("user_id", event.UserID),
		zap.String("severity", event.Severity),
	)
}

// LogAccessDenied records a refused operation at WARN level. These are
// usually UI mistakes, not attacks.
func (a *SecurityAuditor) LogAccessDenied(ctx context.Context, ownerScope string, tableID uuid.UUID, details AccessDeniedDetails) {
	event := SecurityEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  EventAccessDenied,
		OwnerScope: ownerScope,
		TableID:    tableID,
		UserID:     actorID(ctx),
		Details:    details,
		Severity:   "warning",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Access denied",
		zap.String("event_json", string(eventJSON)),
		zap.String("owner_scope", ownerScope),
		zap.String("operation", details.Operation),
		zap.String("required", details.Required),
		zap.String("user_id", event.UserID),
		zap.String("severity", event.Severity),
	)
}
