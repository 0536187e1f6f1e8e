// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package logging

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// captureGlobal points the facade at buf for the duration of the test and
// restores the previous logger and level afterwards. Tests using it must not
// run in parallel.
func captureGlobal(t *testing.T, cfg Config) *bytes.Buffer {
	t.Helper()
	prevLogger := Logger()
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		SetLogger(prevLogger)
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	cfg.Output = &buf
	Init(cfg)
	return &buf
}

// decodeLines parses every JSON line in buf
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		" warn ":   zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"fatal":    zerolog.InfoLevel,
		"verbose":  zerolog.InfoLevel,
		"":         zerolog.InfoLevel,
	}
	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestInit_JSONFields(t *testing.T) {
	buf := captureGlobal(t, Config{Level: "debug", Timestamp: true})

	Debug().Str("backup_id", "backup_20260314_020000").Msg("Archive built")

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	line := lines[0]
	for key, want := range map[string]string{
		"level":     "debug",
		"service":   ServiceName,
		"backup_id": "backup_20260314_020000",
		"message":   "Archive built",
	} {
		if line[key] != want {
			t.Errorf("%s = %v, want %q", key, line[key], want)
		}
	}
	if _, ok := line["time"]; !ok {
		t.Error("time field missing with Timestamp enabled")
	}
}

func TestInit_LevelFilter(t *testing.T) {
	buf := captureGlobal(t, Config{Level: "warn"})

	Trace().Msg("trace")
	Debug().Msg("debug")
	Info().Msg("info")
	Warn().Msg("warn")
	Error().Msg("error")

	var got []string
	for _, line := range decodeLines(t, buf) {
		got = append(got, line["message"].(string))
	}
	if strings.Join(got, ",") != "warn,error" {
		t.Errorf("logged %v, want [warn error]", got)
	}
}

func TestInit_EmptyConfig(t *testing.T) {
	buf := captureGlobal(t, Config{})

	Debug().Msg("hidden")
	Info().Msg("shown")

	lines := decodeLines(t, buf)
	if len(lines) != 1 || lines[0]["message"] != "shown" {
		t.Errorf("lines = %v, want only the info line", lines)
	}
	if _, ok := lines[0]["time"]; ok {
		t.Error("time field present without Timestamp")
	}
}

func TestInit_Console(t *testing.T) {
	buf := captureGlobal(t, Config{Level: "info", Format: "console"})

	Info().Str("stage", "stored_local").Msg("Archive stored")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("console output looks like JSON: %s", out)
	}
	if !strings.Contains(out, "Archive stored") || !strings.Contains(out, "stored_local") {
		t.Errorf("console output missing message or field: %s", out)
	}
}

func TestInit_Caller(t *testing.T) {
	buf := captureGlobal(t, Config{Caller: true})

	Info().Msg("with caller")

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	caller, _ := lines[0]["caller"].(string)
	if !strings.Contains(caller, ".go:") {
		t.Errorf("caller = %q, want file:line", caller)
	}
}

func TestWith(t *testing.T) {
	buf := captureGlobal(t, Config{})

	log := With().Str("component", "retention").Logger()
	log.Info().Int("deleted", 2).Msg("Retention applied")

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["component"] != "retention" || lines[0]["deleted"] != float64(2) {
		t.Errorf("line = %v", lines[0])
	}
}

func TestErr(t *testing.T) {
	buf := captureGlobal(t, Config{})

	Err(errors.New("catalog write failed")).Msg("Save")
	Err(nil).Msg("Save")

	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["level"] != "error" || lines[0]["error"] != "catalog write failed" {
		t.Errorf("non-nil error line = %v", lines[0])
	}
	if lines[1]["level"] != "info" {
		t.Errorf("nil error line level = %v, want info", lines[1]["level"])
	}
}

func TestSetLogger(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	Warn().Msg("swapped")

	if !strings.Contains(buf.String(), `"message":"swapped"`) {
		t.Errorf("output = %s", buf.String())
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.Format != "json" || !cfg.Timestamp || cfg.Caller || cfg.Output == nil {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}
