package refptr

import (
	"sync/atomic"
)

// Target is satisfied by any pointee type that embeds RefTarget. The
// counter accessor is unexported so that only this package can touch the
// reference counts; pointee code sees nothing but the hooks.
type Target interface {
	combinedRefs() *uint64

	// ReleaseResources is the logical-teardown hook. It runs exactly once,
	// when the last strong reference goes away, while the object memory is
	// still valid for any outstanding weak references. Pointees override
	// it to release owned sub-resources (buffers, files, child refs).
	ReleaseResources()
}

// Deallocator is an optional hook for pointees whose storage lives outside
// the Go heap. Deallocate is called exactly once, when the weak count
// reaches zero, at the precise point the protocol would run `delete`.
// Pointees on the ordinary Go heap simply omit it and let the GC reclaim
// the shell.
type Deallocator interface {
	Deallocate()
}

// RefTarget is the base every intrusively counted type embeds. The zero
// value is ready to be wrapped by Make.
//
// Copying a pointee value must never carry its reference count: the copy
// has zero references of its own. The zero value already satisfies this;
// when reusing storage that previously held a live pointee, call Reinit
// before wrapping it again.
type RefTarget struct {
	// Keep this first so the uint64 stays 8-byte aligned on 32-bit
	// platforms even when RefTarget is embedded.
	combined uint64
}

func (t *RefTarget) combinedRefs() *uint64 {
	return &t.combined
}

// ReleaseResources is a no-op by default.
func (t *RefTarget) ReleaseResources() {}

// Reinit resets the counter to zero references. Only valid on storage that
// no handle references anymore.
func (t *RefTarget) Reinit() {
	atomic.StoreUint64(&t.combined, 0)
}

// RefCount returns the current strong count. Diagnostic only: the value
// may be stale by the time the caller looks at it.
func (t *RefTarget) RefCount() uint32 {
	return refcount(loadRefs(&t.combined))
}

// WeakCount returns the current weak count, including the single unit held
// collectively by all strong references. Diagnostic only.
func (t *RefTarget) WeakCount() uint32 {
	return weakcount(loadRefs(&t.combined))
}

// NullPolicy decides what "null" means for a pointee family. The default
// ZeroNull uses the type's zero value (a nil pointer or nil interface);
// families that reserve a distinguished sentinel object supply their own
// policy.
type NullPolicy[T Target] interface {
	Null() T
}

// ZeroNull is the default null policy: null is T's zero value.
type ZeroNull[T Target] struct{}

func (ZeroNull[T]) Null() T {
	var null T
	return null
}

// destroy runs the final-deallocation hook, if the pointee has one. This
// is the single point the protocol frees object storage.
func destroy(t Target) {
	if d, ok := t.(Deallocator); ok {
		d.Deallocate()
	}
}
