package correlation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCategory(t *testing.T) {
	tests := []struct {
		name          string
		exceptionType string
		message       string
		expected      Category
	}{
		{"connection refused", "ConnectionError", "connection refused", CategoryNetwork},
		{"timeout", "TimeoutError", "deadline exceeded after timeout", CategoryNetwork},
		{"sql failure", "QueryError", "sql: no rows in result set", CategoryDatabase},
		{"missing table", "DBError", "table users does not exist", CategoryDatabase},
		{"unauthorized", "AuthError", "unauthorized access", CategoryAuthentication},
		{"login failure", "CredentialError", "login rejected", CategoryAuthentication},
		{"invalid input", "ValueError", "invalid email address", CategoryValidation},
		{"missing field", "FieldError", "field name is required", CategoryValidation},
		{"out of memory", "AllocError", "cannot allocate memory", CategoryResource},
		{"quota exceeded", "QuotaError", "storage quota exceeded", CategoryResource},
		{"upstream api", "HTTPError", "external api returned 502", CategoryExternalAPI},
		{"bad config", "SetupError", "config key missing", CategoryConfiguration},
		{"unmatched", "WeirdError", "something odd happened", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyCategory(tt.exceptionType, tt.message))
		})
	}
}

func TestClassifyCategoryFirstMatchWins(t *testing.T) {
	// "connection" (network) appears before "sql" (database) in rule order
	got := ClassifyCategory("Error", "sql connection lost")
	assert.Equal(t, Category("network"), got)
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name          string
		exceptionType string
		message       string
		expected      Severity
	}{
		{"fatal", "PanicError", "fatal runtime error", SeverityCritical},
		{"corruption", "StorageError", "index corruption detected", SeverityCritical},
		{"security", "TokenError", "security token invalid", SeverityHigh},
		{"database", "QueryError", "database write failed", SeverityHigh},
		{"payment", "ChargeError", "payment declined", SeverityHigh},
		{"validation", "ValueError", "validation failed", SeverityMedium},
		{"timeout", "SlowError", "timeout waiting for reply", SeverityMedium},
		{"mundane", "NoteError", "nothing much", SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifySeverity(tt.exceptionType, tt.message))
		})
	}
}

func TestClassifySeverityMostSevereWins(t *testing.T) {
	// "critical" outranks "timeout" even though both match
	got := ClassifySeverity("Error", "critical timeout in scheduler")
	assert.Equal(t, SeverityCritical, got)
}
