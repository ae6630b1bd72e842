package app

import "os"

// testModeEnv short-circuits the binaries under the package test runner so
// `main` never races a real server start against the test harness.
const testModeEnv = "MOLDWORKS_TEST_MODE"

// InTestMode reports whether runtime side effects (servers, pools, workers)
// should be skipped. Read fresh on every call; tests flip the variable.
func InTestMode() bool {
	return os.Getenv(testModeEnv) == "1"
}
