package audit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) SecurityEvent {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")
	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestLogInjectionAttempt(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)
	tableID := uuid.New()

	tests := []struct {
		name     string
		ctx      context.Context
		wantUser string
	}{
		{"with actor", models.WithActor(context.Background(), models.Actor{UserID: "user-123"}), "user-123"},
		{"without actor", context.Background(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor.LogInjectionAttempt(tt.ctx, "owner-1", tableID, SQLInjectionDetails{
				Column:      "Payload",
				Expression:  "'x' OR '1'='1'",
				Fingerprint: "s&sos",
				TableName:   "Widgets",
			})

			entries := recorded.TakeAll()
			require.Len(t, entries, 1)
			entry := entries[0]
			assert.Equal(t, zapcore.ErrorLevel, entry.Level)
			assert.Equal(t, "security_audit", entry.LoggerName)
			assert.Equal(t, "SQL injection attempt detected", entry.Message)

			event := decodeEvent(t, entry)
			assert.Equal(t, EventSQLInjectionAttempt, event.EventType)
			assert.Equal(t, "owner-1", event.OwnerScope)
			assert.Equal(t, tableID, event.TableID)
			assert.Equal(t, tt.wantUser, event.UserID)
			assert.Equal(t, "critical", event.Severity)
		})
	}
}

func TestLogInjectionAttempt_TruncatesExpression(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogInjectionAttempt(context.Background(), "owner-1", uuid.New(), SQLInjectionDetails{
		Column:     "Payload",
		Expression: strings.Repeat("x", 500),
	})

	event := decodeEvent(t, recorded.All()[0])
	details, ok := event.Details.(map[string]any)
	require.True(t, ok)
	assert.Len(t, details["expression"], 203)
}

func TestLogAccessDenied(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)
	ctx := models.WithActor(context.Background(), models.Actor{UserID: "user-viewer"})

	auditor.LogAccessDenied(ctx, "owner-1", uuid.Nil, AccessDeniedDetails{
		Operation: "create_table",
		Required:  "team_admin",
	})

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "create_table", entry.ContextMap()["operation"])

	event := decodeEvent(t, entry)
	assert.Equal(t, EventAccessDenied, event.EventType)
	assert.Equal(t, "user-viewer", event.UserID)
	assert.Equal(t, "warning", event.Severity)
}
