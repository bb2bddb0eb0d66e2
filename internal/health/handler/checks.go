// Package handler serves liveness and readiness over HTTP and the standard gRPC health protocol.
package handler

import (
	"context"
	"time"
)

const checkTimeout = 3 * time.Second

// Check is a named readiness probe, e.g. a database ping.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// runChecks runs every check with a bounded timeout and returns per-check results and overall health.
func runChecks(ctx context.Context, checks []Check) (map[string]string, bool) {
	results := make(map[string]string, len(checks))
	healthy := true
	for _, chk := range checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := chk.Fn(cctx)
		cancel()
		if err != nil {
			results[chk.Name] = "error: " + err.Error()
			healthy = false
			continue
		}
		results[chk.Name] = "ok"
	}
	return results, healthy
}
