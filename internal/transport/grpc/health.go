package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// BookingsService is the service name reported alongside the overall ("")
// status.
const BookingsService = "bookingdesk.v1.Bookings"

const defaultPingInterval = 10 * time.Second

// HealthServer serves grpc.health.v1.Health and mirrors database reachability
// into the serving status.
type HealthServer struct {
	*health.Server

	ping     func(context.Context) error
	interval time.Duration
	log      *slog.Logger
}

func NewHealthServer(ping func(context.Context) error, interval time.Duration, log *slog.Logger) *HealthServer {
	if interval <= 0 {
		interval = defaultPingInterval
	}
	if log == nil {
		log = slog.Default()
	}
	h := &HealthServer{
		Server:   health.NewServer(),
		ping:     ping,
		interval: interval,
		log:      log.With(slog.String("component", "grpc.health")),
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Run refreshes immediately and then every interval until ctx is done, when all
// services are marked NOT_SERVING.
func (h *HealthServer) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

func (h *HealthServer) Refresh(ctx context.Context) {
	if h.ping == nil {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.interval/2)
	defer cancel()

	if err := h.ping(ctx); err != nil {
		h.log.Warn("database ping failed", slog.Any("err", err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
}

func (h *HealthServer) set(s healthpb.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus("", s)
	h.SetServingStatus(BookingsService, s)
}
