package app

import (
	"os"
	"sync"
)

// TestModeEnv keeps both binaries from dialing postgres, redis or asynq when set to "1".
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the process should skip runtime side effects.
// The flag is read once.
func InTestMode() bool {
	return testMode()
}
