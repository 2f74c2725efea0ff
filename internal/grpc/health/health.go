// Package health serves the standard gRPC health protocol for stigwatch so
// orchestrators can probe the API process without speaking HTTP.
package health

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"stigwatch/pkg/logger"
)

// ServiceName is the health service name reported next to the overall ("")
// status
const ServiceName = "stigwatch.v1.ChecklistService"

const defaultInterval = 10 * time.Second

// Checker is a dependency probed on every refresh
type Checker interface {
	Ping(ctx context.Context) error
}

// Reporter keeps the serving status of the gRPC health service in step with
// the backing stores
type Reporter struct {
	server   *health.Server
	checks   map[string]Checker
	interval time.Duration
	logger   *logger.Logger
}

// RegisterHealthServer registers the gRPC health check service on grpcServer
// and returns the Reporter driving it. interval <= 0 means every 10 seconds.
func RegisterHealthServer(grpcServer *grpc.Server, checks map[string]Checker, interval time.Duration, log *logger.Logger) *Reporter {
	if interval <= 0 {
		interval = defaultInterval
	}
	r := &Reporter{
		server:   health.NewServer(),
		checks:   checks,
		interval: interval,
		logger:   log.WithComponent("grpc-health"),
	}

	r.set(grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, r.server)
	return r
}

// Run refreshes the serving status until ctx is cancelled, then reports
// NOT_SERVING for good.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Refresh pings every dependency once and updates the serving status. It
// reports whether all of them answered.
func (r *Reporter) Refresh(ctx context.Context) bool {
	healthy := true
	for name, check := range r.checks {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check.Ping(pingCtx)
		cancel()
		if err != nil {
			healthy = false
			r.logger.Warn().Err(err).Str("dependency", name).Msg("health check failed")
		}
	}

	if healthy {
		r.set(grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		r.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

func (r *Reporter) set(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)
}
