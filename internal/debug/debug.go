package debug

import (
	"fmt"
	"log"
	"time"
)

// Logf prints a timestamped debug line if debugging is enabled.
func Logf(enabled bool, format string, args ...interface{}) {
	if enabled {
		timestamp := time.Now().Format("15:04:05.000")
		message := fmt.Sprintf(format, args...)
		log.Printf("[%s] %s", timestamp, message)
	}
}

// Timing measures and logs execution time of an operation if debugging is enabled.
// Call the returned function when the operation completes.
func Timing(enabled bool, operation string) func() {
	if !enabled {
		return func() {}
	}

	start := time.Now()
	Logf(enabled, "Starting: %s", operation)

	return func() {
		Logf(enabled, "Completed: %s (took %v)", operation, time.Since(start))
	}
}
