package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("detected %d candidates", 3)
	if got != "detected 3 candidates" {
		t.Errorf("logged %q", got)
	}

	// nil installs a no-op, not a panic.
	SetLogger(nil)
	Logf("dropped %s", "x")
}
