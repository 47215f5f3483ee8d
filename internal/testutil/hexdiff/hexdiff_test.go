package hexdiff

import (
	"strings"
	"testing"
)

func TestDiffEqual(t *testing.T) {
	if d := Diff([]byte{1, 2, 3}, []byte{1, 2, 3}); d != "" {
		t.Fatalf("expected empty diff, got %q", d)
	}
}

func TestDiffReportsChangedLine(t *testing.T) {
	d := Diff([]byte("Hello World!"), []byte("Hello World?"))
	if !strings.Contains(d, "--- want") || !strings.Contains(d, "+++ got") {
		t.Fatalf("missing headers: %q", d)
	}
	if !strings.Contains(d, "21") || !strings.Contains(d, "3f") {
		t.Fatalf("expected both differing bytes in diff: %q", d)
	}
}
