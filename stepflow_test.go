package stepflow

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/goliatone/go-logger/glog"
)

func TestNewErrorClonesSentinel(t *testing.T) {
	err := NewError(ErrStepNotFound, "step \"x\" missing", nil, map[string]any{"step": "x"})
	if err == ErrStepNotFound {
		t.Fatalf("expected a clone, got the sentinel")
	}
	if err.Message != "step \"x\" missing" {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if ErrStepNotFound.Message != "step not found" {
		t.Fatalf("sentinel mutated: %q", ErrStepNotFound.Message)
	}
	if got := ErrorCode(err); got != ErrCodeStepNotFound {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestErrorCodeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", NewError(ErrDefinitionFetch, "", errors.New("timeout"), nil))
	if !HasCode(wrapped, ErrCodeDefinitionFetch) {
		t.Fatalf("expected code through wrapping, got %q", ErrorCode(wrapped))
	}
	if HasCode(nil, ErrCodeDefinitionFetch) {
		t.Fatalf("nil error must not carry a code")
	}
	if ErrorCode(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}

func TestNewErrorNilBase(t *testing.T) {
	if got := ErrorCode(NewError(nil, "", nil, nil)); got != ErrCodeInvalidDefinition {
		t.Fatalf("expected invalid definition fallback, got %q", got)
	}
}

func TestFmtLoggerFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := WithLoggerFields(NewFmtLogger(buf), map[string]any{"session": "k1"})
	logger = WithLoggerFields(logger, map[string]any{"run": "r1"})
	logger.Warn("snapshot save failed key=%s", "k1")

	line := buf.String()
	if !strings.Contains(line, "WARN") || !strings.Contains(line, "snapshot save failed key=k1") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.HasSuffix(strings.TrimSpace(line), "run=r1 session=k1") {
		t.Fatalf("expected sorted fields, got %q", line)
	}
}

func TestFmtLoggerLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewFmtLogger(buf).WithLevel("WARN")
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Error("kept %d", 1)
	if got := buf.String(); strings.Contains(got, "dropped") || !strings.Contains(got, "ERROR kept 1") {
		t.Fatalf("unexpected output %q", got)
	}
	if NewFmtLogger(buf).WithLevel("bogus").min != 0 {
		t.Fatalf("unknown levels keep the threshold")
	}
}

func TestNormalizeLogger(t *testing.T) {
	if _, ok := NormalizeLogger(nil).(*FmtLogger); !ok {
		t.Fatalf("expected nil logger to normalize to FmtLogger")
	}
	if _, ok := NewGlogLogger(nil).(*FmtLogger); !ok {
		t.Fatalf("expected nil glog logger to fall back to FmtLogger")
	}
	var nop NopLogger
	if NormalizeLogger(nop) != Logger(nop) {
		t.Fatalf("expected logger to pass through")
	}
	if WithLoggerFields(nop, map[string]any{"a": 1}) != Logger(nop) {
		t.Fatalf("loggers without field support are returned as is")
	}
}

func TestGlogLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	base := glog.NewLogger(
		glog.WithWriter(buf),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel("trace"),
	)
	logger := WithLoggerFields(NewGlogLogger(base), map[string]any{"run_id": "run-1"})
	logger.Info("run started at %s", "start")

	out := buf.String()
	if strings.TrimSpace(out) == "" {
		t.Fatalf("expected glog output")
	}
	if !strings.Contains(out, "run started at start") {
		t.Fatalf("expected formatted message, got %q", out)
	}
	if !strings.Contains(out, "run_id") {
		t.Fatalf("expected structured fields, got %q", out)
	}
}
