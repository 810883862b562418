package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"priorityforge/internal/config"
)

// isolate points the config and data directories at a temp dir and
// clears the remote overrides, so commands run against a fresh local
// database.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv(config.EnvRemoteURL, "")
	t.Setenv(config.EnvAnonKey, "")
	t.Cleanup(func() { config.SetCustomConfigPath("") })
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := &cli{}
	root := newRootCmd(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	c.close()
	return out.String(), err
}

var createdID = regexp.MustCompile(`Created task #(\d+)`)

func add(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, append([]string{"add"}, args...)...)
	if err != nil {
		t.Fatalf("add %v: %v", args, err)
	}
	m := createdID.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("add output %q has no task id", out)
	}
	return m[1]
}

func listJSON(t *testing.T, args ...string) []map[string]interface{} {
	t.Helper()
	out, err := run(t, append([]string{"list", "-o", "json"}, args...)...)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var entries []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return entries
}

func TestAddAndList(t *testing.T) {
	isolate(t)

	add(t, "low", "-u", "1", "-d", "1")
	add(t, "write", "report", "-u", "5", "-d", "4", "--in", "0")

	entries := listJSON(t)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["title"] != "write report" {
		t.Errorf("first entry = %v, want the harder task first", entries[0]["title"])
	}
	if p, _ := entries[0]["priority"].(float64); math.Abs(p-6.1) > 1e-9 {
		t.Errorf("priority = %v, want 6.1", entries[0]["priority"])
	}
	if entries[0]["due_label"] != "today" {
		t.Errorf("due_label = %v", entries[0]["due_label"])
	}

	entries = listJSON(t, "--sort", "urgency")
	if entries[0]["title"] != "write report" {
		t.Errorf("urgency sort first = %v", entries[0]["title"])
	}

	out, err := run(t, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "write report") || !strings.Contains(out, "u5 d4 p6.1") {
		t.Errorf("text list = %q", out)
	}
}

func TestAddValidation(t *testing.T) {
	isolate(t)

	tests := [][]string{
		{"add", "x", "-u", "6"},
		{"add", "x", "-d", "0"},
		{"add", "x", "--due", "tomorrow"},
		{"add", "   "},
		{"add", "x", "--due", "2026-01-01", "--in", "2"},
	}
	for _, args := range tests {
		if _, err := run(t, args...); err == nil {
			t.Errorf("%v succeeded, want error", args)
		}
	}
	if entries := listJSON(t); len(entries) != 0 {
		t.Errorf("invalid adds created %d tasks", len(entries))
	}
}

func TestEditRecomputesPriority(t *testing.T) {
	isolate(t)
	id := add(t, "task", "-u", "1", "-d", "1")

	out, err := run(t, "edit", id, "-u", "5")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !strings.Contains(out, "priority 3.4") {
		t.Errorf("edit output = %q, want priority 3.4", out)
	}

	if _, err := run(t, "edit", id); err == nil {
		t.Error("edit without flags succeeded")
	}
	if _, err := run(t, "edit", "abc", "-u", "2"); err == nil {
		t.Error("edit with a bad id succeeded")
	}
	if _, err := run(t, "edit", "999", "-u", "2"); err == nil {
		t.Error("edit of an unknown task succeeded")
	}
}

func TestDoneCommitsAfterDelay(t *testing.T) {
	isolate(t)
	id := add(t, "finish")

	out, err := run(t, "done", id)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if !strings.Contains(out, "Ctrl+C to undo") || !strings.Contains(out, "marked done") {
		t.Errorf("done output = %q", out)
	}

	if entries := listJSON(t); len(entries) != 0 {
		t.Errorf("active list has %d entries after done", len(entries))
	}
	history := listJSON(t, "--history")
	if len(history) != 1 || history[0]["completed"] != true {
		t.Errorf("history = %v", history)
	}
}

func TestDeleteForce(t *testing.T) {
	isolate(t)
	id := add(t, "gone")

	if _, err := run(t, "delete", id, "--force"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if entries := listJSON(t); len(entries) != 0 {
		t.Errorf("%d entries after delete", len(entries))
	}
	if _, err := run(t, "delete", id, "--force"); err == nil {
		t.Error("deleting a missing task succeeded")
	}
}

func TestStatusLocalOnly(t *testing.T) {
	isolate(t)
	add(t, "one")

	out, err := run(t, "status", "-o", "json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st map[string]interface{}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if st["source"] != "local" || st["remote_configured"] != false || st["tasks"] != float64(1) {
		t.Errorf("status = %v", st)
	}
}

func TestLoginRequiresRemote(t *testing.T) {
	isolate(t)
	_, err := run(t, "login", "--user-id", "u")
	if err == nil || !strings.Contains(err.Error(), "no remote is configured") {
		t.Errorf("login error = %v", err)
	}
}

func TestConfigInitAndPath(t *testing.T) {
	dir := isolate(t)
	want := filepath.Join(dir, "config", "priorityforge", "config.yaml")

	out, err := run(t, "config", "path")
	if err != nil || strings.TrimSpace(out) != want {
		t.Fatalf("config path = %q, %v, want %s", out, err, want)
	}

	if _, err := run(t, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("config file not written: %v", err)
	}
	if _, err := run(t, "config", "init"); err == nil {
		t.Error("second config init without --force succeeded")
	}

	custom := filepath.Join(dir, "custom.yaml")
	out, err = run(t, "--config", custom, "config", "path")
	if err != nil || strings.TrimSpace(out) != custom {
		t.Errorf("config path with --config = %q, %v", out, err)
	}
}
