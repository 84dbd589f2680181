package app

import "os"

// InTestMode reports whether the process runs under the integration-test
// harness.
func InTestMode() bool {
	return os.Getenv("MOTORLEDGER_TEST_MODE") == "1"
}
