package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func runCmd(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(args, strings.NewReader(stdin), &out); err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestCLIFlow(t *testing.T) {
	dir := t.TempDir()
	common := []string{"--dir", dir, "--log-level", "error", "--segment-size", "64"}
	with := func(cmd string, rest ...string) []string {
		return append(append([]string{cmd}, common...), rest...)
	}

	runCmd(t, "", with("set", "user:1", "alice")...)
	runCmd(t, "", with("set", "user:2", "bob")...)
	runCmd(t, "carol from stdin", with("set", "--file", "-", "user:3")...)
	runCmd(t, "", with("set", "order:1", "widget")...)
	runCmd(t, "", with("set", "user:1", "alice v2")...)
	runCmd(t, "", with("delete", "user:2")...)

	if got := runCmd(t, "", with("get", "user:1")...); got != "alice v2" {
		t.Fatalf("get user:1 = %q", got)
	}
	if got := runCmd(t, "", with("get", "user:3")...); got != "carol from stdin" {
		t.Fatalf("get user:3 = %q", got)
	}
	var out bytes.Buffer
	if err := run(with("get", "user:2"), nil, &out); !errors.Is(err, errNotFound) {
		t.Fatalf("get deleted err = %v", err)
	}
	if got := runCmd(t, "", with("keys", "--prefix", "user:")...); got != "user:1\nuser:3\n" {
		t.Fatalf("keys = %q", got)
	}

	var stats struct {
		Keys     int    `json:"keys"`
		Segments int    `json:"segments"`
		Digest   string `json:"digest"`
	}
	if err := json.Unmarshal([]byte(runCmd(t, "", with("stats", "--digest")...)), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Keys != 3 || stats.Segments < 2 || stats.Digest == "" {
		t.Fatalf("stats = %+v", stats)
	}

	if got := runCmd(t, "", with("merge")...); !strings.HasPrefix(got, "merged 3 keys") {
		t.Fatalf("merge output %q", got)
	}

	snap := filepath.Join(t.TempDir(), "kv.snap")
	runCmd(t, "", with("snapshot", "--url", snap)...)
	restored := t.TempDir()
	got := runCmd(t, "", "restore", "--dir", restored, "--log-level", "error", "--url", snap)
	if !strings.HasPrefix(got, "restored 3 keys") {
		t.Fatalf("restore output %q", got)
	}
	var restoredStats struct {
		Digest string `json:"digest"`
	}
	if err := json.Unmarshal([]byte(runCmd(t, "", "stats", "--dir", restored, "--log-level", "error", "--digest")), &restoredStats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if restoredStats.Digest != stats.Digest {
		t.Fatalf("restored digest %s, want %s", restoredStats.Digest, stats.Digest)
	}

	sqlitePath := filepath.Join(t.TempDir(), "kv.db")
	if got := runCmd(t, "", with("export", "--db", sqlitePath, "--table", "kv")...); !strings.HasPrefix(got, "exported 3 rows") {
		t.Fatalf("export output %q", got)
	}
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	for _, args := range [][]string{nil, {"bogus"}, {"get"}, {"set", "--dir", t.TempDir(), "only-key"}} {
		if err := run(args, strings.NewReader(""), &out); !errors.Is(err, errUsage) {
			t.Fatalf("%v: err = %v, want usage", args, err)
		}
	}
}
