package metrics

import "context"

// NewNoop returns a Handle that discards every measurement, used when no
// --metrics-port is configured.
func NewNoop() Handle {
	return noopHandle{}
}

type noopHandle struct{}

func (noopHandle) CacheHit(context.Context)                   {}
func (noopHandle) CacheMiss(context.Context)                  {}
func (noopHandle) BytesRelayed(context.Context, int64)        {}
func (noopHandle) UpstreamDialError(context.Context)          {}
func (noopHandle) ConnectionOpened(context.Context)           {}
func (noopHandle) ConnectionClosed(context.Context)           {}
func (noopHandle) CommandProcessed(context.Context, Outcome)  {}
