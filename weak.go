package refptr

// Weak is a non-owning reference to a T. It holds one weak unit only: the
// target's memory stays allocated while any Weak exists, but the object
// may already be logically dead (resources released). Lock attempts to
// upgrade to an owning reference and fails once the object has died.
//
// The zero value is a null weak reference.
type Weak[T Target, N NullPolicy[T]] struct {
	target T
}

// WeakOf creates a weak reference observing r's target. Weak of a null
// ref is null.
func WeakOf[T Target, N NullPolicy[T]](r Ref[T, N]) Weak[T, N] {
	if r.IsNull() {
		var n N
		return Weak[T, N]{target: n.Null()}
	}
	incWeak(r.target.combinedRefs())
	return Weak[T, N]{target: r.target}
}

// IsNull reports whether w holds no target under its null policy.
func (w Weak[T, N]) IsNull() bool {
	var n N
	return Target(w.target) == Target(n.Null())
}

// Clone returns a new weak reference to the same target.
func (w Weak[T, N]) Clone() Weak[T, N] {
	if w.IsNull() {
		return w
	}
	incWeak(w.target.combinedRefs())
	return Weak[T, N]{target: w.target}
}

// Lock attempts to upgrade to an owning reference. It fails with a null
// Ref when the object is logically dead (strong count zero). The upgrade
// is a compare-and-swap loop, never an unconditional increment: a plain
// increment could resurrect an object whose ReleaseResources already ran.
func (w Weak[T, N]) Lock() Ref[T, N] {
	var n N
	if w.IsNull() {
		return Ref[T, N]{target: n.Null()}
	}
	combined := w.target.combinedRefs()
	for {
		old := loadRefs(combined)
		if refcount(old) == 0 {
			return Ref[T, N]{target: n.Null()}
		}
		if casRefs(combined, old, old+refcountOne) {
			// The new strong unit is adopted as-is; its implicit weak
			// unit was already part of the count the strong side holds.
			return Ref[T, N]{target: w.target}
		}
	}
}

// Release drops this weak reference and nulls w. Whichever handle retires
// the last weak unit deallocates the storage; the resource-release hook
// is not run here, it already ran when the strong count hit zero.
func (w *Weak[T, N]) Release() {
	if w.IsNull() {
		return
	}
	t := Target(w.target)
	var n N
	w.target = n.Null()
	if weakcount(decWeak(t.combinedRefs())) == 0 {
		destroy(t)
	}
}

// RefCount returns the target's current strong count, or 0 for null.
// Diagnostic only.
func (w Weak[T, N]) RefCount() uint32 {
	if w.IsNull() {
		return 0
	}
	return refcount(loadRefs(w.target.combinedRefs()))
}

// WeakCount returns the target's current weak count, or 0 for null.
// Diagnostic only.
func (w Weak[T, N]) WeakCount() uint32 {
	if w.IsNull() {
		return 0
	}
	return weakcount(loadRefs(w.target.combinedRefs()))
}
