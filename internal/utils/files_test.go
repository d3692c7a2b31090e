package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "chart.png")
	if err := SafeWriteFile(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := SafeWriteFile(path, []byte("two"), 0o600); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "two" {
		t.Fatalf("content = %q, want %q", b, "two")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWithExt(t *testing.T) {
	cases := map[string]string{
		"chart.png":       "chart.svg",
		"out/chart":       "out/chart.svg",
		"a.b/report.html": "a.b/report.svg",
	}
	for in, want := range cases {
		if got := WithExt(in, "svg"); got != want {
			t.Errorf("WithExt(%q) = %q, want %q", in, got, want)
		}
	}
}
