package health

import (
	"context"
	"time"
)

// Result represents the outcome of a single health check.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is implemented by anything the gateway probes for readiness
// through Run; in this module that is the store connection
// (pkg/gateway's storeChecker).
type Checker interface {
	Check(ctx context.Context) Result
	Name() string
}

// Run executes a Checker with a bounded timeout and stamps the result.
func Run(ctx context.Context, c Checker, timeout time.Duration) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := c.Check(ctx)
	result.CheckedAt = start
	result.Duration = time.Since(start)
	return result
}
