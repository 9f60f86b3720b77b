package refptr

import (
	"sync/atomic"
)

// Ref is an owning (strong) reference to a T. Each non-null Ref accounts
// for exactly one strong unit plus one weak unit in the target's combined
// counter; the weak unit is what keeps the memory alive long enough for
// teardown to run even while weak handles race with the final release.
//
// Ref is a value type. Share ownership via Clone, and pair every
// Make/Clone with exactly one Release. The zero value is a null reference
// under the ZeroNull policy.
type Ref[T Target, N NullPolicy[T]] struct {
	target T
}

// Make wraps a freshly constructed pointee in its first owning reference.
// This is the only sanctioned way to bring a new object under intrusive
// counting. The combined counter is set to one strong plus one weak in a
// single store, never via two observable increments, so no other
// goroutine can ever see the half-initialized state strong=0,weak=1 and
// conclude the object is dead.
//
// Wrapping an object that is already referenced is a protocol violation
// and panics.
func Make[T Target](target T) Ref[T, ZeroNull[T]] {
	return MakeWith[T, ZeroNull[T]](target)
}

// MakeWith is Make for pointee families with a custom null policy.
func MakeWith[T Target, N NullPolicy[T]](target T) Ref[T, N] {
	var n N
	null := n.Null()
	if Target(target) == Target(null) {
		return Ref[T, N]{target: null}
	}
	combined := target.combinedRefs()
	if loadRefs(combined) != 0 {
		panic("refptr: target already referenced")
	}
	atomic.StoreUint64(combined, uniqueRef)
	return Ref[T, N]{target: target}
}

// Adopt wraps a raw reference that already represents one counted strong
// unit, without incrementing. It is the inverse of Detach and the entry
// point for binding layers that move ownership across call conventions.
func Adopt[T Target](target T) Ref[T, ZeroNull[T]] {
	return AdoptWith[T, ZeroNull[T]](target)
}

// AdoptWith is Adopt for pointee families with a custom null policy.
func AdoptWith[T Target, N NullPolicy[T]](target T) Ref[T, N] {
	return Ref[T, N]{target: target}
}

// IsNull reports whether r holds no target under its null policy.
func (r Ref[T, N]) IsNull() bool {
	var n N
	return Target(r.target) == Target(n.Null())
}

// Get returns the raw reference, or the policy's null value. The caller
// must not use it beyond r's ownership.
func (r Ref[T, N]) Get() T {
	return r.target
}

// Clone returns a new owning reference to the same target. Null refs
// clone to null.
func (r Ref[T, N]) Clone() Ref[T, N] {
	if r.IsNull() {
		return r
	}
	if refcount(incRef(r.target.combinedRefs())) == 1 {
		panic("inc zero refs")
	}
	return Ref[T, N]{target: r.target}
}

// Release drops this owning reference and nulls r. The last strong
// reference to go runs the target's ReleaseResources hook exactly once;
// storage is deallocated when the weak count also reaches zero, which may
// be the same event or a later Weak.Release.
func (r *Ref[T, N]) Release() {
	if r.IsNull() {
		return
	}
	t := Target(r.target)
	var n N
	r.target = n.Null()

	combined := t.combinedRefs()

	// Sole reference of any kind: no other handle exists that could
	// observe the counter, so a plain store and immediate teardown is
	// safe. This is the overwhelmingly common single-owner case.
	if loadRefs(combined) == uniqueRef {
		atomic.StoreUint64(combined, 0)
		t.ReleaseResources()
		destroy(t)
		return
	}

	after := decRef(combined)
	if refcount(after) != 0 {
		return
	}

	// This handle retired the last strong unit; it alone runs teardown.
	t.ReleaseResources()
	if after == weakcountOne {
		// The only weak unit left was the one held implicitly by this
		// strong reference: no independent weak handles exist.
		destroy(t)
	} else if weakcount(decWeak(combined)) == 0 {
		destroy(t)
	}
}

// Swap exchanges the targets of two references without touching counts.
func (r *Ref[T, N]) Swap(other *Ref[T, N]) {
	r.target, other.target = other.target, r.target
}

// Assign replaces r's reference with a share of other's. Implemented as
// clone-then-swap so the old value is released through a temporary: one
// code path for every assignment shape, safe under self-assignment.
func (r *Ref[T, N]) Assign(other Ref[T, N]) {
	tmp := other.Clone()
	r.Swap(&tmp)
	tmp.Release()
}

// Move transfers other's reference into r, leaving other null. The moved
// reference costs no counter traffic; r's previous value is released.
func (r *Ref[T, N]) Move(other *Ref[T, N]) {
	var n N
	tmp := Ref[T, N]{target: other.target}
	other.target = n.Null()
	r.Swap(&tmp)
	tmp.Release()
}

// Detach gives up ownership without decrementing and nulls r. The
// returned raw reference still carries one strong unit; it must later be
// rewrapped with Adopt or the object leaks.
func (r *Ref[T, N]) Detach() T {
	t := r.target
	var n N
	r.target = n.Null()
	return t
}

// RefCount returns the target's current strong count, or 0 for null.
// Diagnostic only: the value may be stale by the time the caller sees it.
func (r Ref[T, N]) RefCount() uint32 {
	if r.IsNull() {
		return 0
	}
	return refcount(loadRefs(r.target.combinedRefs()))
}

// WeakCount returns the target's current weak count, or 0 for null.
// Diagnostic only.
func (r Ref[T, N]) WeakCount() uint32 {
	if r.IsNull() {
		return 0
	}
	return weakcount(loadRefs(r.target.combinedRefs()))
}

// As converts a reference to a different pointee type T2, typically an
// interface type the concrete pointee satisfies. On success the result
// shares ownership (one new strong unit). Returns ok=false and a null
// reference when the target is not a T2; a null input converts to null
// with ok=true.
func As[T2 Target, T Target, N NullPolicy[T]](r Ref[T, N]) (Ref[T2, ZeroNull[T2]], bool) {
	var null Ref[T2, ZeroNull[T2]]
	if r.IsNull() {
		return null, true
	}
	t2, ok := Target(r.target).(T2)
	if !ok {
		return null, false
	}
	if refcount(incRef(t2.combinedRefs())) == 1 {
		panic("inc zero refs")
	}
	return Ref[T2, ZeroNull[T2]]{target: t2}, true
}
