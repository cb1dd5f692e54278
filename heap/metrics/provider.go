package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/heapkit/heap/provider"
)

// Provider counts the traffic of an upstream provider.
type Provider struct {
	upstream provider.Provider

	allocateCalls   prometheus.Counter
	allocateBytes   prometheus.Counter
	deallocateCalls prometheus.Counter
	deallocateBytes prometheus.Counter
	failures        prometheus.Counter
	decommitBytes   prometheus.Counter
	inuseBytes      prometheus.Gauge
}

var (
	_ provider.Provider    = (*Provider)(nil)
	_ provider.Decommitter = (*Provider)(nil)
)

// WrapProvider returns p instrumented with <namespace>_provider_* metrics
// registered on reg.
func WrapProvider(p provider.Provider, reg prometheus.Registerer, namespace string) (*Provider, error) {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "provider", Name: name, Help: help}
	}
	w := &Provider{
		upstream:        p,
		allocateCalls:   prometheus.NewCounter(prometheus.CounterOpts(opts("allocations_total", "Successful Allocate calls."))),
		allocateBytes:   prometheus.NewCounter(prometheus.CounterOpts(opts("allocated_bytes_total", "Bytes returned by Allocate."))),
		deallocateCalls: prometheus.NewCounter(prometheus.CounterOpts(opts("deallocations_total", "Deallocate calls."))),
		deallocateBytes: prometheus.NewCounter(prometheus.CounterOpts(opts("deallocated_bytes_total", "Bytes passed to Deallocate."))),
		failures:        prometheus.NewCounter(prometheus.CounterOpts(opts("failures_total", "Failed Allocate calls."))),
		decommitBytes:   prometheus.NewCounter(prometheus.CounterOpts(opts("decommitted_bytes_total", "Bytes decommitted."))),
		inuseBytes:      prometheus.NewGauge(prometheus.GaugeOpts(opts("inuse_bytes", "Bytes currently allocated."))),
	}
	for _, c := range []prometheus.Collector{
		w.allocateCalls, w.allocateBytes, w.deallocateCalls, w.deallocateBytes,
		w.failures, w.decommitBytes, w.inuseBytes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Allocate forwards to the upstream provider.
func (w *Provider) Allocate(size, alignment uintptr) (uintptr, error) {
	p, err := w.upstream.Allocate(size, alignment)
	if err != nil {
		w.failures.Inc()
		return 0, err
	}
	w.allocateCalls.Inc()
	w.allocateBytes.Add(float64(size))
	w.inuseBytes.Add(float64(size))
	return p, nil
}

// Deallocate forwards to the upstream provider.
func (w *Provider) Deallocate(ptr, size uintptr) {
	w.upstream.Deallocate(ptr, size)
	w.deallocateCalls.Inc()
	w.deallocateBytes.Add(float64(size))
	w.inuseBytes.Sub(float64(size))
}

// PageSize returns the upstream page size.
func (w *Provider) PageSize() uintptr { return w.upstream.PageSize() }

// Decommit forwards to the upstream provider when it supports decommit.
func (w *Provider) Decommit(ptr, size uintptr) error {
	d, ok := w.upstream.(provider.Decommitter)
	if !ok {
		return provider.ErrNotSupported
	}
	if err := d.Decommit(ptr, size); err != nil {
		return err
	}
	w.decommitBytes.Add(float64(size))
	return nil
}
