package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/shule/core/role"
)

const resolutionContextKey = "resolution"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shule_http_requests_total",
			Help: "HTTP requests handled by the API.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shule_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// metricsMiddleware records request counts and durations.
// The route template is used as the path label so ids do not blow up cardinality.
func metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			method := ctx.Request().Method
			status := strconv.Itoa(ctx.Response().Status)
			httpRequestsTotal.WithLabelValues(method, path, status).Inc()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// roleGateMiddleware resolves the caller role and stores it in the context.
// Requests are refused while the resolution is loading or when the role does not match gate.
func roleGateMiddleware(resolver *role.Resolver, gate role.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			res, err := resolver.Resolve(ctx.Request().Context(), getContextIdentity(ctx))
			if err != nil {
				return errors.Wrap(err, "resolving role")
			}
			ctx.Set(resolutionContextKey, res)
			if err := gate.Check(res); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func getContextResolution(ctx echo.Context) (role.Resolution, error) {
	if res, ok := ctx.Get(resolutionContextKey).(role.Resolution); ok {
		return res, nil
	}
	return role.Resolution{}, errUnauthorized
}
