package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterOptions struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORS           CORSPolicy
	Limiter        Limiter
	// LimiterFailOpen lets requests through when Limiter errors.
	LimiterFailOpen bool
	Tracing         bool
}

// NewRouter mounts the booking and health routes behind the middleware stack.
func NewRouter(bookings *BookingsHandler, health *HealthHandler, log *slog.Logger, opts RouterOptions) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	router := httprouter.New()
	router.RedirectTrailingSlash = false
	bookings.RegisterRoutes(router)
	health.RegisterRoutes(router)

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = writeErrorJSON(w, http.StatusNotFound, "not found", nil)
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	h := Chain(router,
		WithRecovery(log),
		WithRequestID,
		WithAccessLog(log.With(slog.String("component", "http.access"))),
		WithCORS(opts.CORS),
		WithRateLimit(opts.Limiter, log, opts.LimiterFailOpen),
		WithBodyLimit(opts.MaxBodyBytes),
		WithTimeout(opts.RequestTimeout),
	)

	if !opts.Tracing {
		return h
	}
	return otelhttp.NewHandler(h, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
