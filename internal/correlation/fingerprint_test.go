package correlation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "timestamps masked",
			input:    "request failed at 2026-01-15T10:32:07Z",
			expected: "request failed at TIMESTAMP",
		},
		{
			name:     "hex addresses masked",
			input:    "nil pointer at 0xc000124e80",
			expected: "nil pointer at ADDR",
		},
		{
			name:     "uuids masked",
			input:    "user 550e8400-e29b-41d4-a716-446655440000 not found",
			expected: "user UUID not found",
		},
		{
			name:     "long hex tokens masked",
			input:    "session deadbeef01 expired",
			expected: "session UUID expired",
		},
		{
			name:     "digit runs masked",
			input:    "retry 3 of 10 failed after 250ms",
			expected: "retry N of N failed after Nms",
		},
		{
			name:     "case folded",
			input:    "Connection REFUSED",
			expected: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeMessage(tt.input))
		})
	}
}

func TestNormalizeMessageCollapsesVariants(t *testing.T) {
	a := NormalizeMessage("invalid email abc123@test.com at 2026-08-01T09:00:00Z")
	b := NormalizeMessage("invalid email xyz987@test.com at 2026-08-02T17:30:00Z")
	assert.Equal(t, a, b)
}

func TestStackSignature(t *testing.T) {
	appFrames := []Frame{
		{File: "/app/internal/store/db.go", Line: 42, Function: "store.Load"},
		{File: "/app/internal/api/handler.go", Line: 101, Function: "api.Handle"},
	}

	sig := StackSignature(appFrames)
	assert.Equal(t, "db.go:42 -> handler.go:101", sig)
}

func TestStackSignatureSkipsFrameworkFrames(t *testing.T) {
	frames := []Frame{
		{File: "/usr/local/go/src/runtime/panic.go", Line: 920, Function: "runtime.gopanic"},
		{File: "/go/pkg/mod/github.com/gin-gonic/gin@v1.11.0/context.go", Line: 185, Function: "gin.Next"},
		{File: "/app/internal/store/db.go", Line: 42, Function: "store.Load"},
	}

	sig := StackSignature(frames)
	assert.Equal(t, "db.go:42", sig)
}

func TestStackSignatureFrameworkOnlyFallback(t *testing.T) {
	frames := []Frame{
		{File: "/usr/local/go/src/runtime/panic.go", Line: 920},
		{File: "/usr/local/go/src/runtime/proc.go", Line: 267},
		{File: "/usr/local/go/src/net/http/server.go", Line: 2936},
		{File: "/usr/local/go/src/net/http/server.go", Line: 1995},
	}

	sig := StackSignature(frames)
	assert.Equal(t, "panic.go:920 -> proc.go:267 -> server.go:2936", sig)
}

func TestStackSignatureCapsAtFiveFrames(t *testing.T) {
	frames := make([]Frame, 8)
	for i := range frames {
		frames[i] = Frame{File: "/app/a.go", Line: i + 1}
	}

	sig := StackSignature(frames)
	assert.Equal(t, "a.go:1 -> a.go:2 -> a.go:3 -> a.go:4 -> a.go:5", sig)
}

func TestComputeFingerprintDeterministic(t *testing.T) {
	frames := []Frame{{File: "/app/internal/store/db.go", Line: 42, Function: "store.Load"}}

	fp1, parts1 := ComputeFingerprint("ConnectionError", "connection refused to 10.0.0.5", "store", "Load", frames)
	fp2, parts2 := ComputeFingerprint("ConnectionError", "connection refused to 10.0.0.9", "store", "Load", frames)

	assert.Equal(t, fp1, fp2, "dynamic host digits should not change the fingerprint")
	assert.Equal(t, parts1, parts2)
	assert.Len(t, fp1, 16)
	assert.Equal(t, "store.Load", parts1.FunctionSignature)
}

func TestComputeFingerprintDistinguishesTypes(t *testing.T) {
	frames := []Frame{{File: "/app/internal/store/db.go", Line: 42, Function: "store.Load"}}

	fp1, _ := ComputeFingerprint("ConnectionError", "request failed", "store", "Load", frames)
	fp2, _ := ComputeFingerprint("TimeoutError", "request failed", "store", "Load", frames)

	assert.NotEqual(t, fp1, fp2)
}

func TestComputeFingerprintDistinguishesLocations(t *testing.T) {
	frames := []Frame{{File: "/app/internal/store/db.go", Line: 42, Function: "store.Load"}}

	fp1, _ := ComputeFingerprint("ConnectionError", "request failed", "store", "Load", frames)
	fp2, _ := ComputeFingerprint("ConnectionError", "request failed", "store", "Save", frames)

	assert.NotEqual(t, fp1, fp2)
}
