package cmdlog

import (
	"time"

	"tweetnorm/internal/logging"
	"tweetnorm/internal/metrics"
)

// Run executes f as the named command, recording its outcome and duration.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	fields := map[string]any{"elapsed": time.Since(start).String()}
	if err != nil {
		metrics.IncCommandError(cmd)
		fields["error"] = err.Error()
		logging.Error(cmd+"_error", fields)
	} else {
		logging.Info(cmd+"_ok", fields)
	}
	return err
}
