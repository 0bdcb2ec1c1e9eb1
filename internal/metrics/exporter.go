package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Server bundles the OpenTelemetry MeterProvider and the HTTP server
// exposing it in Prometheus exposition format.
type Server struct {
	provider *sdkmetric.MeterProvider
	http     *http.Server
}

// StartServer wires a Prometheus exporter into the global otel MeterProvider
// and serves /metrics on addr. Mirrors the teacher's pattern of registering
// an exporter once at process startup and never touching it again.
func StartServer(addr string) (*Server, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	srv := &Server{provider: provider, http: httpSrv}

	go func() {
		_ = httpSrv.ListenAndServe()
	}()

	return srv, nil
}

// Shutdown stops the HTTP listener and flushes the MeterProvider. Matches
// the common.ShutdownFn shape so it composes with common.JoinShutdownFunc.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.provider.Shutdown(ctx)
}
