package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/BradenHooton/bankauth/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedUsername(t *testing.T) {
	assert.Equal(t, "[empty]", logger.SanitizedUsername(""))
	assert.Equal(t, "*", logger.SanitizedUsername("a"))
	assert.Equal(t, "a****", logger.SanitizedUsername("alice"))
	assert.Equal(t, "é**", logger.SanitizedUsername("éva"))
}

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "a****@*******.com", logger.SanitizedEmail("alice@example.com"))
	assert.Equal(t, "*@*******.co", logger.SanitizedEmail("b@example.co"))
	assert.Equal(t, "[invalid-email]", logger.SanitizedEmail("no-at-sign"))
	assert.Equal(t, "[invalid-email]", logger.SanitizedEmail("a@b@c"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, logger.SanitizeQueryString("username=alice"))
	assert.True(t, logger.SanitizeQueryString("Password=x"))
	assert.False(t, logger.SanitizeQueryString("limit=10&offset=20"))
}

func TestAuditLogger_LogLoginAttempt_MasksUsername(t *testing.T) {
	var buf bytes.Buffer
	audit := logger.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	audit.LogLoginAttempt(context.Background(), logger.LoginAuditEvent{
		Username:  "alice",
		IPAddress: "203.0.113.10",
		Outcome:   "wrong_password",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "a****", entry["username"])
	assert.Equal(t, "wrong_password", entry["outcome"])
	assert.Equal(t, "203.0.113.10", entry["ip_address"])
	assert.NotContains(t, buf.String(), "alice")
}
