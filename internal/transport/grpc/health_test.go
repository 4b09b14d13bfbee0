package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func checkStatus(t *testing.T, h *HealthServer, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q) error: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthServer_RefreshTracksDatabase(t *testing.T) {
	var pingErr error
	h := NewHealthServer(func(context.Context) error { return pingErr }, time.Second, discardLogger())

	if got := checkStatus(t, h, BookingsService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status = %v, want NOT_SERVING", got)
	}

	h.Refresh(context.Background())
	if got := checkStatus(t, h, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", got)
	}

	pingErr = errors.New("connection refused")
	h.Refresh(context.Background())
	if got := checkStatus(t, h, BookingsService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", got)
	}
}

func TestHealthServer_UnknownService(t *testing.T) {
	h := NewHealthServer(nil, time.Second, discardLogger())

	_, err := h.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v, want NotFound", status.Code(err))
	}
}

func TestHealthServer_RunStopsOnCancel(t *testing.T) {
	pinged := make(chan struct{}, 1)
	h := NewHealthServer(func(context.Context) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	}, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not ping the database")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}

	if got := checkStatus(t, h, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after shutdown = %v, want NOT_SERVING", got)
	}
}

func TestDefaultRequestTimeoutInterceptor(t *testing.T) {
	intercept := defaultRequestTimeoutInterceptor(50 * time.Millisecond)

	_, err := intercept(context.Background(), nil, nil, func(ctx context.Context, _ any) (any, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatalf("expected deadline")
		}
		if time.Until(deadline) > 50*time.Millisecond {
			t.Fatalf("deadline too far: %v", time.Until(deadline))
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	want, _ := parent.Deadline()
	_, _ = intercept(parent, nil, nil, func(ctx context.Context, _ any) (any, error) {
		if got, _ := ctx.Deadline(); !got.Equal(want) {
			t.Fatalf("existing deadline replaced: %v vs %v", got, want)
		}
		return nil, nil
	})
}
