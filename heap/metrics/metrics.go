// Package metrics exposes allocator state to Prometheus.
//
// Allocator and registry metrics are GaugeFuncs and CounterFuncs evaluated
// on every scrape, so registering them adds no cost to the allocation
// paths. WrapProvider instead counts provider traffic as it happens.
package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/pool"
)

type valueKind int

const (
	gauge valueKind = iota
	counter
)

type metricSpec struct {
	name  string
	help  string
	kind  valueKind
	value func() float64
}

func register(reg prometheus.Registerer, namespace, subsystem string, specs []metricSpec) error {
	for _, s := range specs {
		opts := prometheus.Opts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      s.name,
			Help:      s.help,
		}
		var c prometheus.Collector
		if s.kind == counter {
			c = prometheus.NewCounterFunc(prometheus.CounterOpts(opts), s.value)
		} else {
			c = prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts), s.value)
		}
		if err := reg.Register(c); err != nil {
			return errors.Wrapf(err, "metrics: register %s_%s", subsystem, s.name)
		}
	}
	return nil
}

// RegisterAllocator registers metrics read from a.Stats() under
// <namespace>_heap_*.
func RegisterAllocator(reg prometheus.Registerer, namespace string, a *heap.Allocator) error {
	stat := func(f func(heap.Stats) float64) func() float64 {
		return func() float64 { return f(a.Stats()) }
	}
	return register(reg, namespace, "heap", []metricSpec{
		{"requested_bytes", "Usable bytes of live allocations.", gauge,
			stat(func(s heap.Stats) float64 { return float64(s.Requested) })},
		{"allocated_bytes", "Bytes held from the provider.", gauge,
			stat(func(s heap.Stats) float64 { return float64(s.Allocated) })},
		{"live_allocations", "Live allocations.", gauge,
			stat(func(s heap.Stats) float64 { return float64(s.Live) })},
		{"unused_bytes", "Held bytes not backing any allocation.", gauge,
			stat(func(s heap.Stats) float64 { return float64(s.UnusedMemory) })},
		{"max_allocation_bytes", "Largest request servable without growing.", gauge,
			stat(func(s heap.Stats) float64 { return float64(s.MaxAllocation) })},
		{"bucket_pages", "Pages linked into buckets.", gauge,
			stat(func(s heap.Stats) float64 { return float64(s.Bucket.PagesInUse) })},
		{"bucket_stack_pages", "Empty pages on the free-page stack.", gauge,
			stat(func(s heap.Stats) float64 { return float64(s.Bucket.StackPages) })},
		{"tree_extents", "Extents held by the tree engine.", gauge,
			stat(func(s heap.Stats) float64 { return float64(s.Tree.Extents) })},
		{"tree_free_blocks", "Free blocks in the tree engine.", gauge,
			stat(func(s heap.Stats) float64 { return float64(s.Tree.FreeBlocks) })},
		{"page_grows_total", "Bucket pages obtained from the page source.", counter,
			stat(func(s heap.Stats) float64 { return float64(s.Bucket.PageGrows) })},
		{"tree_grows_total", "Extents obtained by the tree engine.", counter,
			stat(func(s heap.Stats) float64 { return float64(s.Tree.Grows) })},
		{"purges_total", "Purges, including purge-and-retry.", counter,
			stat(func(s heap.Stats) float64 { return float64(s.Purges) })},
		{"retries_total", "Allocations retried after a purge.", counter,
			stat(func(s heap.Stats) float64 { return float64(s.Retries) })},
		{"out_of_memory_total", "Allocations that failed.", counter,
			stat(func(s heap.Stats) float64 { return float64(s.OutOfMemory) })},
	})
}

// RegisterRegistry registers metrics read from r.Stats() under
// <namespace>_pool_*.
func RegisterRegistry(reg prometheus.Registerer, namespace string, r *pool.Registry) error {
	stat := func(f func(pool.Stats) float64) func() float64 {
		return func() float64 { return f(r.Stats()) }
	}
	return register(reg, namespace, "pool", []metricSpec{
		{"threads", "Registered threads.", gauge,
			stat(func(s pool.Stats) float64 { return float64(s.Threads) })},
		{"retired_threads", "Unregistered threads still owning elements.", gauge,
			stat(func(s pool.Stats) float64 { return float64(s.Retired) })},
		{"pages", "Pages held from the provider.", gauge,
			stat(func(s pool.Stats) float64 { return float64(s.Pages) })},
		{"stack_pages", "Empty pages on the shared stack.", gauge,
			stat(func(s pool.Stats) float64 { return float64(s.StackPages) })},
		{"deferred_frees_total", "Cross-thread frees queued.", counter,
			stat(func(s pool.Stats) float64 { return float64(s.DeferredFrees) })},
	})
}
