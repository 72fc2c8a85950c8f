package main

import (
	"bytes"
	"testing"

	"opgrid/internal/lifecycle"
)

func TestStatusLabel(t *testing.T) {
	cases := map[lifecycle.Status]string{
		lifecycle.StatusCreated:         "Created",
		lifecycle.StatusDistributeError: "Distribute Error",
		lifecycle.StatusUnsetEnv:        "Unset Env",
		lifecycle.Status(42):            "STATUS(42)",
	}
	for status, want := range cases {
		if got := statusLabel(status); got != want {
			t.Fatalf("statusLabel(%d) = %q, want %q", int(status), got, want)
		}
	}
}

func TestPrefixWriterBuffersPartialLines(t *testing.T) {
	var out bytes.Buffer
	w := &prefixWriter{prefix: "[rank 1] ", w: &out}

	if _, err := w.Write([]byte("first\nsec")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := w.Write([]byte("ond\ntail")); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.flush()

	want := "[rank 1] first\n[rank 1] second\n[rank 1] tail\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestRequireFixedPort(t *testing.T) {
	if err := requireFixedPort("127.0.0.1:7611"); err != nil {
		t.Fatalf("expected fixed port to pass: %v", err)
	}
	for _, addr := range []string{"127.0.0.1:0", "localhost", ""} {
		if err := requireFixedPort(addr); err == nil {
			t.Fatalf("expected %q to be rejected", addr)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
