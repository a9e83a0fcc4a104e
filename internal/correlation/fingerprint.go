package correlation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Message normalization strips the incidental, dynamic parts of an error
// message so that two occurrences of the same defect hash identically.
// Everything here is pure and deterministic: same input, same fingerprint.
var (
	isoTimestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}:\d{2}(\.\d+)?(z|[+-]\d{2}:?\d{2})?`)
	hexAddrRe      = regexp.MustCompile(`0x[0-9a-f]+`)
	hexTokenRe     = regexp.MustCompile(`\b[0-9a-f]{8}(-[0-9a-f]{4}){3}-[0-9a-f]{12}\b|\b[0-9a-f]{8,}\b`)
	digitRunRe     = regexp.MustCompile(`\d+`)
)

// NormalizeMessage case-folds a message and masks volatile tokens: ISO
// timestamps become TIMESTAMP, 0x-prefixed addresses become ADDR, hex/UUID
// looking tokens become UUID, and remaining digit runs become N.
func NormalizeMessage(message string) string {
	m := strings.ToLower(message)
	m = isoTimestampRe.ReplaceAllString(m, "TIMESTAMP")
	m = hexAddrRe.ReplaceAllString(m, "ADDR")
	m = hexTokenRe.ReplaceAllString(m, "UUID")
	m = digitRunRe.ReplaceAllString(m, "N")
	return m
}

// Frame is one resolved stack frame
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// String renders the frame the way it appears in stack trace listings
func (f Frame) String() string {
	return fmt.Sprintf("%s:%d %s", f.File, f.Line, f.Function)
}

// Source paths containing any of these markers belong to the runtime,
// third-party modules, or test scaffolding rather than application code.
var frameworkMarkers = []string{
	"/usr/local/go/",
	"/go/pkg/mod/",
	"/vendor/",
	"runtime/",
	"testing/",
	"google.golang.org/",
	"github.com/gin-gonic/",
}

func isFrameworkFrame(f Frame) bool {
	for _, marker := range frameworkMarkers {
		if strings.Contains(f.File, marker) {
			return true
		}
	}
	return false
}

// StackSignature condenses a stack into a stable identity string: up to 5
// non-framework frames rendered as basename:line and joined by " -> ". If
// filtering removes everything, the first 3 raw frames are used so the
// signature never collapses to the empty string on framework-only stacks.
func StackSignature(frames []Frame) string {
	kept := make([]Frame, 0, 5)
	for _, f := range frames {
		if isFrameworkFrame(f) {
			continue
		}
		kept = append(kept, f)
		if len(kept) == 5 {
			break
		}
	}
	if len(kept) == 0 {
		if len(frames) > 3 {
			kept = frames[:3]
		} else {
			kept = frames
		}
	}

	parts := make([]string, len(kept))
	for i, f := range kept {
		parts[i] = fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}
	return strings.Join(parts, " -> ")
}

// FingerprintParts are the four components a fingerprint is derived from,
// exposed by the reporting API for operator inspection.
type FingerprintParts struct {
	ExceptionType     string `json:"exception_type"`
	MessageHash       string `json:"message_hash"`
	FunctionSignature string `json:"function_signature"`
	StackHash         string `json:"stack_hash"`
}

// hash8 returns the first 8 hex chars of sha256(s)
func hash8(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// ComputeFingerprint derives the deterministic identity of an error class
// from its exception type, normalized message, declaring function, and
// condensed stack signature. Two errors with identical fingerprints are the
// same defect.
func ComputeFingerprint(exceptionType, message, module, function string, frames []Frame) (string, FingerprintParts) {
	parts := FingerprintParts{
		ExceptionType:     exceptionType,
		MessageHash:       hash8(NormalizeMessage(message)),
		FunctionSignature: module + "." + function,
		StackHash:         hash8(StackSignature(frames)),
	}

	joined := strings.Join([]string{
		parts.ExceptionType,
		parts.MessageHash,
		parts.FunctionSignature,
		parts.StackHash,
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16], parts
}
