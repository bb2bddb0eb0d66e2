package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCReporter keeps a grpc health server's overall status in line with the readiness checks.
type GRPCReporter struct {
	srv    *health.Server
	checks []Check
	log    *zap.Logger
	last   healthpb.HealthCheckResponse_ServingStatus
}

// NewGRPCReporter returns a reporter for srv.
func NewGRPCReporter(srv *health.Server, log *zap.Logger, checks ...Check) *GRPCReporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &GRPCReporter{srv: srv, checks: checks, log: log}
}

// Update runs the checks once and publishes the result for the empty service name.
func (r *GRPCReporter) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	results, healthy := runChecks(ctx, r.checks)
	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if status != r.last {
		r.log.Info("grpc health status changed", zap.String("status", status.String()), zap.Any("checks", results))
		r.last = status
	}
	r.srv.SetServingStatus("", status)
	return status
}

// Run calls Update every interval until ctx is done.
func (r *GRPCReporter) Run(ctx context.Context, interval time.Duration) {
	r.Update(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Update(ctx)
		}
	}
}
