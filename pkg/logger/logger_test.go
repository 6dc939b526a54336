package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf)

	log.WithField("symbol", "SPY").Info("order staged")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}

	if entry["symbol"] != "SPY" {
		t.Errorf("expected symbol=SPY, got %v", entry["symbol"])
	}
	if entry["message"] != "order staged" {
		t.Errorf("expected message=order staged, got %v", entry["message"])
	}
}

func TestWithOrder(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf)

	log.WithOrder(123).Warn("transition conflict")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}

	// JSON numbers decode as float64
	if entry["order_id"] != float64(123) {
		t.Errorf("expected order_id=123, got %v", entry["order_id"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf)

	log.WithError(errors.New("version mismatch")).Error("update failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}

	if entry["error"] != "version mismatch" {
		t.Errorf("expected error=version mismatch, got %v", entry["error"])
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"WARN", "warn"},
		{"warning", "warn"},
		{"error", "error"},
		{"unknown", "info"},
	}

	for _, tc := range tests {
		got := parseLogLevel(tc.input).String()
		if got != tc.want {
			t.Errorf("parseLogLevel(%s) = %s, want %s", tc.input, got, tc.want)
		}
	}
}
