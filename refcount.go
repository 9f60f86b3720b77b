// Package refptr implements an intrusive reference-counted smart pointer.
//
// The strong and weak reference counts live inside the pointed-to object
// (any type embedding RefTarget) instead of a separately allocated control
// block, so ownership tracking costs no extra allocation and no extra
// pointer chase. Objects are created through Make, handed around as Ref
// values, and optionally observed through Weak handles that keep the
// object's memory alive without keeping it logically alive.
package refptr

import (
	"sync/atomic"
)

// A single uint64 carries both counts: the strong count in bits 0-31 and
// the weak count in bits 32-63. One atomic read-modify-write can therefore
// observe or change either half consistently with the other.
const (
	refcountOne  = uint64(1)
	weakcountOne = uint64(1) << 32

	// uniqueRef is the combined value of a handle that is provably the
	// sole reference of any kind: strong == 1, weak == 1.
	uniqueRef = refcountOne | weakcountOne
)

func refcount(combined uint64) uint32 {
	return uint32(combined)
}

func weakcount(combined uint64) uint32 {
	return uint32(combined >> 32)
}

func pack(strong, weak uint32) uint64 {
	return uint64(weak)<<32 | uint64(strong)
}

// Increments never need to observe anything beyond the counter itself: the
// caller already holds a valid reference to copy from, which is what makes
// relaxed ordering sufficient in a weaker memory model. Go's sync/atomic
// is sequentially consistent, strictly stronger than required.
func incRef(combined *uint64) uint64 {
	return atomic.AddUint64(combined, refcountOne)
}

func incWeak(combined *uint64) uint64 {
	return atomic.AddUint64(combined, weakcountOne)
}

// Decrements are the ordering-critical half of the protocol: the thread
// that observes a zero count is the one that runs teardown, and it must
// see every write made through every other handle first. fetch-add of the
// two's complement; exactly one caller observes each zero crossing.
func decRef(combined *uint64) uint64 {
	return atomic.AddUint64(combined, ^uint64(0))
}

func decWeak(combined *uint64) uint64 {
	return atomic.AddUint64(combined, ^(weakcountOne - 1))
}

func loadRefs(combined *uint64) uint64 {
	return atomic.LoadUint64(combined)
}

func casRefs(combined *uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(combined, old, new)
}
