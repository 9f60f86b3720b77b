package refptr

import (
	"sync/atomic"
	"testing"
)

// testObj counts teardown hook invocations.
type testObj struct {
	RefTarget
	released  int32
	destroyed int32
}

func (o *testObj) ReleaseResources() {
	atomic.AddInt32(&o.released, 1)
}

func (o *testObj) Deallocate() {
	atomic.AddInt32(&o.destroyed, 1)
}

func Test_SingleOwner(t *testing.T) {
	obj := &testObj{}
	r := Make(obj)

	if r.IsNull() {
		t.Fatal("fresh reference is null")
	}
	if r.Get() != obj {
		t.Fatal("Get returned wrong target")
	}
	if r.RefCount() != 1 || r.WeakCount() != 1 {
		t.Fatalf("fresh counts = (%d,%d), want (1,1)", r.RefCount(), r.WeakCount())
	}

	r.Release()

	if !r.IsNull() {
		t.Fatal("released reference not null")
	}
	if obj.released != 1 {
		t.Fatalf("release hook ran %d times, want 1", obj.released)
	}
	if obj.destroyed != 1 {
		t.Fatalf("deallocated %d times, want 1", obj.destroyed)
	}
}

func Test_RefCountAccounting(t *testing.T) {
	obj := &testObj{}
	r := Make(obj)

	refs := make([]Ref[*testObj, ZeroNull[*testObj]], 0)
	for n := 0; n < 10; n++ {
		refs = append(refs, r.Clone())
		if got := r.RefCount(); got != uint32(2+n) {
			t.Fatalf("after %d clones count = %d, want %d", n+1, got, 2+n)
		}
	}

	for m := 0; m < 10; m++ {
		refs[m].Release()
		if got := r.RefCount(); got != uint32(10-m) {
			t.Fatalf("after %d releases count = %d, want %d", m+1, got, 10-m)
		}
	}

	if obj.released != 0 || obj.destroyed != 0 {
		t.Fatal("object torn down while a reference was live")
	}

	r.Release()
	if obj.released != 1 || obj.destroyed != 1 {
		t.Fatalf("teardown counts = (%d,%d), want (1,1)", obj.released, obj.destroyed)
	}
}

func Test_WeakHoldsOffDeallocation(t *testing.T) {
	obj := &testObj{}
	r := Make(obj)
	w := WeakOf(r)

	if w.WeakCount() != 2 {
		t.Fatalf("weak count = %d, want 2", w.WeakCount())
	}

	r.Release()

	if obj.released != 1 {
		t.Fatalf("release hook ran %d times, want 1", obj.released)
	}
	if obj.destroyed != 0 {
		t.Fatal("deallocated while a weak reference exists")
	}

	w.Release()

	if obj.destroyed != 1 {
		t.Fatalf("deallocated %d times, want 1", obj.destroyed)
	}
	if obj.released != 1 {
		t.Fatal("release hook ran again during weak release")
	}
}

func Test_DirectDeletionRunsHook(t *testing.T) {
	// No independent weak references: the last strong release deallocates
	// directly, and the release hook must still run exactly once.
	obj := &testObj{}
	r := Make(obj)
	r2 := r.Clone()

	r.Release()
	if obj.released != 0 {
		t.Fatal("release hook ran with a strong reference outstanding")
	}

	r2.Release()
	if obj.released != 1 || obj.destroyed != 1 {
		t.Fatalf("teardown counts = (%d,%d), want (1,1)", obj.released, obj.destroyed)
	}
}

func Test_SelfAssign(t *testing.T) {
	obj := &testObj{}
	r := Make(obj)

	r.Assign(r)

	if r.IsNull() || r.Get() != obj {
		t.Fatal("self-assignment lost the target")
	}
	if r.RefCount() != 1 {
		t.Fatalf("count after self-assignment = %d, want 1", r.RefCount())
	}
	if obj.released != 0 || obj.destroyed != 0 {
		t.Fatal("self-assignment destroyed the object")
	}

	r.Release()
}

func Test_Assign(t *testing.T) {
	a := &testObj{}
	b := &testObj{}
	ra := Make(a)
	rb := Make(b)

	ra.Assign(rb)

	if a.released != 1 || a.destroyed != 1 {
		t.Fatal("assignment did not release the previous target")
	}
	if ra.Get() != b || ra.RefCount() != 2 {
		t.Fatalf("assignment target/count wrong: %v", ra.RefCount())
	}

	ra.Release()
	rb.Release()
	if b.released != 1 || b.destroyed != 1 {
		t.Fatal("shared target not torn down exactly once")
	}
}

func Test_Move(t *testing.T) {
	obj := &testObj{}
	src := Make(obj)
	var dst Ref[*testObj, ZeroNull[*testObj]]

	dst.Move(&src)

	if !src.IsNull() {
		t.Fatal("move source not null")
	}
	if dst.Get() != obj || dst.RefCount() != 1 {
		t.Fatal("move did not transfer the reference unchanged")
	}
	if obj.released != 0 {
		t.Fatal("move tore the object down")
	}

	// Self-move keeps the value.
	dst.Move(&dst)
	if dst.Get() != obj || dst.RefCount() != 1 {
		t.Fatal("self-move lost the target")
	}

	dst.Release()
	if obj.released != 1 || obj.destroyed != 1 {
		t.Fatal("moved object not torn down exactly once")
	}
}

func Test_Swap(t *testing.T) {
	a := &testObj{}
	b := &testObj{}
	ra := Make(a)
	rb := Make(b)

	ra.Swap(&rb)

	if ra.Get() != b || rb.Get() != a {
		t.Fatal("swap did not exchange targets")
	}
	if ra.RefCount() != 1 || rb.RefCount() != 1 {
		t.Fatal("swap changed counts")
	}

	ra.Release()
	rb.Release()
}

func Test_DetachAdopt(t *testing.T) {
	obj := &testObj{}
	r := Make(obj)

	raw := r.Detach()
	if !r.IsNull() {
		t.Fatal("detached reference not null")
	}
	if obj.released != 0 {
		t.Fatal("detach released the object")
	}
	if raw.RefCount() != 1 {
		t.Fatalf("detached count = %d, want 1", raw.RefCount())
	}

	r2 := Adopt(raw)
	r2.Release()
	if obj.released != 1 || obj.destroyed != 1 {
		t.Fatal("adopted reference did not tear down exactly once")
	}
}

func Test_NullOps(t *testing.T) {
	var r Ref[*testObj, ZeroNull[*testObj]]

	if !r.IsNull() {
		t.Fatal("zero value not null")
	}
	if r.RefCount() != 0 || r.WeakCount() != 0 {
		t.Fatal("null counts not zero")
	}

	c := r.Clone()
	if !c.IsNull() {
		t.Fatal("clone of null not null")
	}
	r.Release() // no-op
	c.Release()

	if rn := Make[*testObj](nil); !rn.IsNull() {
		t.Fatal("Make(nil) not null")
	}
}

type noisy interface {
	Target
	Sound() string
}

type dog struct {
	testObj
}

func (d *dog) Sound() string { return "woof" }

func Test_As(t *testing.T) {
	d := &dog{}
	r := Make(d)

	n, ok := As[noisy](r)
	if !ok || n.IsNull() {
		t.Fatal("conversion to satisfied interface failed")
	}
	if n.Get().Sound() != "woof" {
		t.Fatal("converted reference dispatches wrong target")
	}
	if r.RefCount() != 2 {
		t.Fatalf("count after conversion = %d, want 2", r.RefCount())
	}

	// Conversion back down to the concrete type.
	d2, ok := As[*dog](n)
	if !ok || d2.Get() != d {
		t.Fatal("downcast failed")
	}
	d2.Release()

	// A type the target is not.
	b, ok := As[*Blob](r)
	if ok || !b.IsNull() {
		t.Fatal("conversion to unrelated type succeeded")
	}

	n.Release()
	r.Release()
	if d.released != 1 || d.destroyed != 1 {
		t.Fatal("converted object not torn down exactly once")
	}
}

// A pointee family using a distinguished sentinel object as null.
type sentObj struct {
	testObj
	id int
}

var sentinel = &sentObj{}

type sentNull struct{}

func (sentNull) Null() *sentObj { return sentinel }

func Test_SentinelNull(t *testing.T) {
	r := MakeWith[*sentObj, sentNull](sentinel)
	if !r.IsNull() {
		t.Fatal("sentinel not treated as null")
	}
	if sentinel.RefCount() != 0 {
		t.Fatal("wrapping the sentinel touched its counter")
	}
	r.Release()

	obj := &sentObj{id: 42}
	r2 := MakeWith[*sentObj, sentNull](obj)
	if r2.IsNull() {
		t.Fatal("real object treated as null")
	}
	if r2.Get().id != 42 {
		t.Fatal("wrong target")
	}

	w := WeakOf(r2)
	r2.Release()
	if obj.released != 1 {
		t.Fatal("sentinel-family object not released")
	}
	if got := w.Lock(); !got.IsNull() {
		t.Fatal("lock succeeded after death")
	}
	w.Release()
	if obj.destroyed != 1 {
		t.Fatal("sentinel-family object not deallocated")
	}
}

func Test_MakeRejectsLiveTarget(t *testing.T) {
	obj := &testObj{}
	r := Make(obj)
	defer r.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("second first-reference wrap did not panic")
		}
	}()
	Make(obj)
}
