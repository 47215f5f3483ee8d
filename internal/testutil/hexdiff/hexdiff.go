// Package hexdiff renders byte slice mismatches as a unified diff of hex dumps.
package hexdiff

import (
	"bytes"
	"encoding/hex"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns "" when want and got are equal.
func Diff(want, got []byte) string {
	if bytes.Equal(want, got) {
		return ""
	}
	d, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(hex.Dump(want)),
		B:        difflib.SplitLines(hex.Dump(got)),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	if err != nil {
		return err.Error()
	}
	return d
}

// Equal fails t with a hex diff when want and got differ.
func Equal(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, want, got []byte) {
	t.Helper()
	if d := Diff(want, got); d != "" {
		t.Fatalf("bytes mismatch:\n%s", d)
	}
}
