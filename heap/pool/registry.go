package pool

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joshuapare/heapkit/heap/bucket"
	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/logger"
)

// Options configures a Registry. A nil *Options selects the defaults.
type Options struct {
	// PageHook observes the page traffic of every thread.
	PageHook bucket.PageHook

	// Logger receives debug events. Default: logger.Named("pool").
	Logger *zap.Logger
}

// Registry tracks the registered threads and the pages they share.
type Registry struct {
	src   *bucket.ProviderPages
	stack *bucket.PageStack
	hook  bucket.PageHook
	log   *zap.Logger

	mu      sync.RWMutex
	threads map[uintptr]*Thread
	retired map[uintptr]*Thread
	closed  bool

	nextID   atomic.Uintptr
	deferred atomic.Uint64
}

// NewRegistry returns a registry whose threads draw pages from p.
func NewRegistry(p provider.Provider, opts *Options) *Registry {
	if opts == nil {
		opts = &Options{}
	}
	r := &Registry{
		src:     bucket.NewProviderPages(p),
		stack:   bucket.NewPageStack(),
		hook:    opts.PageHook,
		log:     opts.Logger,
		threads: make(map[uintptr]*Thread),
		retired: make(map[uintptr]*Thread),
	}
	if r.log == nil {
		r.log = logger.Named("pool")
	}
	return r
}

// Register creates the state of a new thread. The returned Thread must be
// used from one goroutine at a time.
func (r *Registry) Register() *Thread {
	id := r.nextID.Add(1)
	t := &Thread{id: id, r: r}
	t.engine = bucket.New(r.src, &bucket.Options{
		Owner:  id,
		Stack:  r.stack,
		Hook:   r.hook,
		Logger: r.log.Named("thread"),
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		panic(errors.AssertionFailedf("pool: register on a closed registry"))
	}
	r.threads[id] = t
	return t
}

// Unregister is the thread-stop hook. It applies pending frees and hands
// the thread's empty pages to the shared stack. A thread that still owns
// live elements is retired until they are freed.
func (r *Registry) Unregister(t *Thread) {
	t.drain()
	t.engine.Trim()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.threads[t.id] != t {
		panic(errors.AssertionFailedf("pool: thread %d is not registered", t.id))
	}
	delete(r.threads, t.id)
	if t.engine.Stats().PagesInUse > 0 {
		t.retired.Store(true)
		r.retired[t.id] = t
		r.log.Debug("thread retired", zap.Uintptr("thread", t.id), zap.Int64("pages", t.engine.Stats().PagesInUse))
	}
}

// lookup returns the registered or retired thread with id.
func (r *Registry) lookup(id uintptr) *Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t := r.threads[id]; t != nil {
		return t
	}
	return r.retired[id]
}

// GarbageCollect applies every pending cross-thread free, moves empty
// pages to the shared stack, drops retired threads that no longer own
// anything, and releases the shared stack to the provider.
func (r *Registry) GarbageCollect() {
	r.mu.Lock()
	for _, t := range r.threads {
		t.drain()
		t.engine.Trim()
	}
	dropped := 0
	for id, t := range r.retired {
		t.drain()
		t.engine.Trim()
		if t.engine.Stats().PagesInUse == 0 && t.deferred.Load() == 0 {
			delete(r.retired, id)
			dropped++
		}
	}
	r.mu.Unlock()

	released := r.stack.ReleaseAll(r.src, r.hook)
	if dropped > 0 || released > 0 {
		r.log.Debug("garbage collect", zap.Int("retired_dropped", dropped), zap.Int("pages", released))
	}
}

// Close releases every page of every thread, live elements included. The
// registry and its threads must not be used afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, t := range r.threads {
		t.engine.GarbageCollect(true)
	}
	for _, t := range r.retired {
		t.engine.GarbageCollect(true)
	}
	r.stack.ReleaseAll(r.src, r.hook)
	r.threads = make(map[uintptr]*Thread)
	r.retired = make(map[uintptr]*Thread)
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Threads       int    // registered threads
	Retired       int    // unregistered threads that still own elements
	DeferredFrees uint64 // cross-thread frees queued so far
	Pages         int64  // pages held from the provider
	StackPages    int    // empty pages on the shared stack
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Threads:       len(r.threads),
		Retired:       len(r.retired),
		DeferredFrees: r.deferred.Load(),
		Pages:         r.src.Pages(),
		StackPages:    r.stack.Len(),
	}
}

// ownerOf returns the owner tag of the page holding p.
func ownerOf(p uintptr) uintptr {
	return format.PageOwner(format.PageOf(p))
}
