// Package metrics instruments ombud with OpenTelemetry counters backed by a
// Prometheus exporter, following the same MetricHandle-interface-plus-noop
// split the teacher uses for its own GCS metrics.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels a processed command.
type Outcome string

const (
	OutcomeHit       Outcome = "hit"
	OutcomeMiss      Outcome = "miss"
	OutcomeMalformed Outcome = "malformed"
)

const outcomeKey = "outcome"

// Handle is the metrics surface the reactor records against.
type Handle interface {
	CacheHit(ctx context.Context)
	CacheMiss(ctx context.Context)
	BytesRelayed(ctx context.Context, n int64)
	UpstreamDialError(ctx context.Context)
	ConnectionOpened(ctx context.Context)
	ConnectionClosed(ctx context.Context)
	CommandProcessed(ctx context.Context, outcome Outcome)
}

var outcomeAttrs sync.Map

func outcomeOption(o Outcome) metric.MeasurementOption {
	if v, ok := outcomeAttrs.Load(o); ok {
		return v.(metric.MeasurementOption)
	}
	opt := metric.WithAttributeSet(attribute.NewSet(attribute.String(outcomeKey, string(o))))
	v, _ := outcomeAttrs.LoadOrStore(o, opt)
	return v.(metric.MeasurementOption)
}

type otelHandle struct {
	cacheHits, cacheMisses metric.Int64Counter
	bytesRelayed           metric.Int64Counter
	dialErrors             metric.Int64Counter
	activeConnections      metric.Int64UpDownCounter
	commandsTotal          metric.Int64Counter
}

// New constructs the real otel-backed Handle on the global MeterProvider.
// Instruments created before StartServer installs the Prometheus-backed
// provider are forwarded to it by otel's global delegating provider.
func New() (Handle, error) {
	meter := otel.Meter("ombud")

	cacheHits, err1 := meter.Int64Counter("ombud_cache_hits_total",
		metric.WithDescription("Number of service identifiers served from the cache."))
	cacheMisses, err2 := meter.Int64Counter("ombud_cache_misses_total",
		metric.WithDescription("Number of service identifiers that required an upstream dial."))
	bytesRelayed, err3 := meter.Int64Counter("ombud_bytes_relayed_total",
		metric.WithDescription("Total bytes relayed back to clients."),
		metric.WithUnit("By"))
	dialErrors, err4 := meter.Int64Counter("ombud_upstream_dial_errors_total",
		metric.WithDescription("Number of failed upstream dials."))
	activeConnections, err5 := meter.Int64UpDownCounter("ombud_active_connections",
		metric.WithDescription("Current count of open client sockets; upstream sockets are not counted."))
	commandsTotal, err6 := meter.Int64Counter("ombud_commands_total",
		metric.WithDescription("Commands processed, labelled by outcome."))

	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return nil, err
		}
	}

	return &otelHandle{
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		bytesRelayed:      bytesRelayed,
		dialErrors:        dialErrors,
		activeConnections: activeConnections,
		commandsTotal:     commandsTotal,
	}, nil
}

func (h *otelHandle) CacheHit(ctx context.Context)  { h.cacheHits.Add(ctx, 1) }
func (h *otelHandle) CacheMiss(ctx context.Context) { h.cacheMisses.Add(ctx, 1) }
func (h *otelHandle) BytesRelayed(ctx context.Context, n int64) {
	h.bytesRelayed.Add(ctx, n)
}
func (h *otelHandle) UpstreamDialError(ctx context.Context) { h.dialErrors.Add(ctx, 1) }
func (h *otelHandle) ConnectionOpened(ctx context.Context)  { h.activeConnections.Add(ctx, 1) }
func (h *otelHandle) ConnectionClosed(ctx context.Context)  { h.activeConnections.Add(ctx, -1) }
func (h *otelHandle) CommandProcessed(ctx context.Context, outcome Outcome) {
	h.commandsTotal.Add(ctx, 1, outcomeOption(outcome))
}
