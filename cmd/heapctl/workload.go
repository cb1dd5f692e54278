package main

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/pagetrack"
	"github.com/joshuapare/heapkit/heap/pool"
	"github.com/joshuapare/heapkit/internal/config"
	"github.com/joshuapare/heapkit/internal/format"
)

// block is one live allocation of the workload.
type block struct {
	ptr  unsafe.Pointer
	size uintptr
	tag  byte
}

func (b block) fill() { format.Fill(uintptr(b.ptr), b.size, b.tag) }

func (b block) intact(n uintptr) bool {
	for _, c := range format.Bytes(uintptr(b.ptr), min(n, b.size)) {
		if c != b.tag {
			return false
		}
	}
	return true
}

// report is the outcome of one workload run.
type report struct {
	Mode        string        `json:"mode"`
	Workers     int           `json:"workers"`
	Ops         int64         `json:"ops"`
	Allocs      int64         `json:"allocs"`
	Frees       int64         `json:"frees"`
	Reallocs    int64         `json:"reallocs"`
	CrossFrees  int64         `json:"cross_frees"`
	Failures    int64         `json:"failures"`
	Corruptions int64         `json:"corruptions"`
	Elapsed     time.Duration `json:"elapsed_ns"`

	Pages pagetrack.Summary `json:"pages"`
	Heap  *heap.Stats       `json:"heap,omitempty"`
	Pool  *pool.Stats       `json:"pool,omitempty"`
}

type counters struct {
	ops, allocs, frees, reallocs, crossFrees, failures, corruptions atomic.Int64
}

// mailbox collects elements handed to a pool worker by other workers.
type mailbox struct {
	mu    sync.Mutex
	items []block
}

func (m *mailbox) put(b block) {
	m.mu.Lock()
	m.items = append(m.items, b)
	m.mu.Unlock()
}

func (m *mailbox) take() []block {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

// workload runs random allocate, reallocate and free operations against
// either a shared Allocator or a pool Registry.
type workload struct {
	cfg     config.Stress
	heap    *heap.Allocator
	reg     *pool.Registry
	tracker *pagetrack.Tracker
	round   int64
}

func (w *workload) size(rng *rand.Rand) uintptr {
	return uintptr(w.cfg.MinSize + rng.Intn(w.cfg.MaxSize-w.cfg.MinSize+1))
}

// run executes one round of cfg.Ops operations split over cfg.Workers
// tasks of an ants pool.
func (w *workload) run() (*report, error) {
	workers := w.cfg.Workers
	p, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.Wrap(err, "stress: worker pool")
	}
	defer p.Release()

	var c counters
	perWorker := w.cfg.Ops / workers
	seed := w.cfg.Seed + w.round*int64(workers)
	w.round++
	start := time.Now()

	if w.cfg.Mode == config.ModePool {
		err = w.runPool(p, &c, perWorker, seed)
	} else {
		err = w.runHeap(p, &c, perWorker, seed)
	}
	if err != nil {
		return nil, err
	}

	r := &report{
		Mode:        w.cfg.Mode,
		Workers:     workers,
		Ops:         c.ops.Load(),
		Allocs:      c.allocs.Load(),
		Frees:       c.frees.Load(),
		Reallocs:    c.reallocs.Load(),
		CrossFrees:  c.crossFrees.Load(),
		Failures:    c.failures.Load(),
		Corruptions: c.corruptions.Load(),
		Elapsed:     time.Since(start),
	}
	if w.tracker != nil {
		r.Pages = w.tracker.Summary()
	}
	if w.heap != nil {
		st := w.heap.Stats()
		r.Heap = &st
	}
	if w.reg != nil {
		st := w.reg.Stats()
		r.Pool = &st
	}
	if r.Corruptions > 0 {
		return r, errors.Newf("stress: %d allocations were corrupted", r.Corruptions)
	}
	return r, nil
}

// submitAll runs task(i) for every worker and waits for all of them.
func submitAll(p *ants.Pool, workers int, task func(i int)) error {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			task(i)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return errors.Wrap(err, "stress: submit")
		}
	}
	wg.Wait()
	return nil
}

func (w *workload) runHeap(p *ants.Pool, c *counters, ops int, seed int64) error {
	a := w.heap
	return submitAll(p, w.cfg.Workers, func(i int) {
		rng := rand.New(rand.NewSource(seed + int64(i)))
		var live []block
		free := func(j int) {
			b := live[j]
			if !b.intact(b.size) {
				c.corruptions.Add(1)
			}
			a.Deallocate(b.ptr, b.size, 0)
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			c.frees.Add(1)
		}

		for n := 0; n < ops; n++ {
			c.ops.Add(1)
			switch op := rng.Intn(10); {
			case len(live) > 0 && (op >= 8 || len(live) >= w.cfg.MaxLive):
				free(rng.Intn(len(live)))
			case len(live) > 0 && op == 7:
				j := rng.Intn(len(live))
				b := live[j]
				size := w.size(rng)
				np, err := a.Reallocate(b.ptr, size, 0)
				if err != nil {
					c.failures.Add(1)
					continue
				}
				moved := block{np, size, b.tag}
				if !moved.intact(b.size) {
					c.corruptions.Add(1)
				}
				moved.fill()
				live[j] = moved
				c.reallocs.Add(1)
			default:
				size := w.size(rng)
				ptr, err := a.Allocate(size, 0)
				if err != nil {
					c.failures.Add(1)
					continue
				}
				b := block{ptr, size, byte(rng.Intn(255) + 1)}
				b.fill()
				live = append(live, b)
				c.allocs.Add(1)
			}
		}
		for len(live) > 0 {
			free(len(live) - 1)
		}
	})
}

// runPool gives every worker its own pool thread. A cfg.CrossFree share of
// frees is handed to the next worker, which frees the element from its
// own thread after the allocating phase.
func (w *workload) runPool(p *ants.Pool, c *counters, ops int, seed int64) error {
	workers := w.cfg.Workers
	threads := make([]*pool.Thread, workers)
	boxes := make([]mailbox, workers)
	for i := range threads {
		threads[i] = w.reg.Register()
	}

	release := func(th *pool.Thread, b block) {
		if !b.intact(b.size) {
			c.corruptions.Add(1)
		}
		th.Deallocate(b.ptr)
		c.frees.Add(1)
	}

	err := submitAll(p, workers, func(i int) {
		th := threads[i]
		rng := rand.New(rand.NewSource(seed + int64(i)))
		var live []block
		for n := 0; n < ops; n++ {
			c.ops.Add(1)
			if len(live) > 0 && (rng.Intn(2) == 0 || len(live) >= w.cfg.MaxLive) {
				j := rng.Intn(len(live))
				b := live[j]
				live[j] = live[len(live)-1]
				live = live[:len(live)-1]
				if rng.Float64() < w.cfg.CrossFree {
					boxes[(i+1)%workers].put(b)
					c.crossFrees.Add(1)
				} else {
					release(th, b)
				}
				continue
			}
			size := w.size(rng)
			ptr, err := th.Allocate(size)
			if err != nil {
				c.failures.Add(1)
				continue
			}
			b := block{ptr, size, byte(rng.Intn(255) + 1)}
			b.fill()
			live = append(live, b)
			c.allocs.Add(1)

			if n%64 == 0 {
				for _, b := range boxes[i].take() {
					release(th, b)
				}
			}
		}
		for _, b := range live {
			release(th, b)
		}
	})
	if err != nil {
		return err
	}

	err = submitAll(p, workers, func(i int) {
		for _, b := range boxes[i].take() {
			release(threads[i], b)
		}
		w.reg.Unregister(threads[i])
	})
	if err != nil {
		return err
	}
	w.reg.GarbageCollect()
	return nil
}
