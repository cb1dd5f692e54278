// Package pool provides per-thread small-object allocation.
//
// # Overview
//
// A Registry owns one free-page stack and a table of registered threads.
// Each Thread has its own bucket engine whose pages carry the thread id as
// owner tag, so allocation never contends with other threads on a bucket
// lock. Completely empty pages go to the shared stack, where any thread can
// pick them up for any size class.
//
// # Thread Lifecycle
//
// Register is the thread-start hook and Unregister the thread-stop hook.
// Go has no thread-local storage, so the caller keeps the *Thread and uses
// it from a single goroutine:
//
//	t := reg.Register()
//	defer reg.Unregister(t)
//
//	p, err := t.Allocate(64)
//	...
//	t.Deallocate(p)
//
// A thread that unregisters while elements it allocated are still live is
// retired instead of dropped. Registry.GarbageCollect releases it once the
// last of those elements has been freed.
//
// # Cross-thread Frees
//
// Freeing an element owned by another thread does not touch that thread's
// engine. The element is pushed onto the owner's deferred-free stack, an
// atomic push-only stack linked through the element memory, and the owner
// applies it at its next allocation or when the registry collects.
package pool
