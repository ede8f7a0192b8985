package utils

import (
	"testing"
)

func TestCopyToClipboard(t *testing.T) {
	err := CopyToClipboard("search:foo|lang=sv")

	// On CI or systems without clipboard, this may fail - that's expected
	if err != nil {
		t.Logf("Clipboard not available (expected in CI): %v", err)
	} else {
		t.Log("Clipboard copy succeeded")
	}
}
