// Package tracing provides Jaeger-backed opentracing.Tracer instances for
// the composite manager and its Remote Agent Clients, adapted from
// Chapter11/tracing/tracer with the service name generalised to whichever
// manager tier (island/master) constructs it.
package tracing

import (
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Pool tracks every tracer instantiated by this process so they can all be
// flushed/closed together on shutdown.
var Pool = new(pool)

type pool struct {
	mu            sync.Mutex
	tracerClosers []io.Closer
}

// Close flushes and closes every tracer currently tracked by the pool.
func (p *pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for _, closer := range p.tracerClosers {
		if cErr := closer.Close(); cErr != nil {
			err = multierror.Append(err, cErr)
		}
	}

	p.tracerClosers = nil
	return err
}

// MustGetTracer obtains a Jaeger tracer for serviceName (e.g.
// "dfms-node-manager" for the Island tier, "dfms-island-manager" for the
// Master tier, as named after each tier's partition attribute) or panics.
func MustGetTracer(serviceName string) opentracing.Tracer {
	tracer, err := GetTracer(serviceName)
	if err != nil {
		panic(err)
	}
	return tracer
}

// GetTracer obtains a Jaeger tracer for serviceName, configured from the
// environment (JAEGER_* vars) with a const-sample-everything sampler.
// Callers must call Pool.Close before the process exits so spans aren't
// lost.
func GetTracer(serviceName string) (opentracing.Tracer, error) {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, err
	}

	cfg.Sampler = &jaegercfg.SamplerConfig{
		Type:  jaeger.SamplerTypeConst,
		Param: 1,
	}
	cfg.ServiceName = serviceName

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, err
	}

	Pool.mu.Lock()
	Pool.tracerClosers = append(Pool.tracerClosers, closer)
	Pool.mu.Unlock()
	return tracer, nil
}
