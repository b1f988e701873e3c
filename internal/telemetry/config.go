package telemetry

import (
	"os"
)

var (
	observeEnabled bool
	observeDir     = ".agent"
)

func init() {
	// Read once at process start. Mid-run environment changes have no effect,
	// except the explicit AGT_OBSERVE_JSON=1 override honoured by ObserveEnabled.
	observeEnabled = os.Getenv("AGT_OBSERVE_JSON") == "1"
	if v := os.Getenv("AGT_OBSERVE_DIR"); v != "" {
		observeDir = v
	}
}

// ObserveEnabled reports whether JSONL emission is on.
func ObserveEnabled() bool {
	// Allow tests to enable mid-run via env override.
	if os.Getenv("AGT_OBSERVE_JSON") == "1" {
		return true
	}
	return observeEnabled
}

// Dir returns the directory events.jsonl is written to.
func Dir() string { return observeDir }
