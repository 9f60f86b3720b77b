package refptr

import (
	"errors"

	"github.com/harkal/refptr/balloc"
)

var (
	ErrInvalidSize = errors.New("Input data size is invalid")
)

const maxDataSize = 0x9C4000

// Blob is an intrusively counted byte buffer whose payload lives in a
// balloc arena rather than on the Go heap. The payload is freed the
// moment the last strong reference goes away, even if weak references
// still observe the Blob shell.
type Blob struct {
	RefTarget
	mm     balloc.MemoryManager
	offset uint64
	size   uint32
}

// BlobRef is an owning reference to a Blob.
type BlobRef = Ref[*Blob, ZeroNull[*Blob]]

// NewBlob copies data into freshly allocated arena space and wraps the
// blob in its first owning reference.
func NewBlob(mm balloc.MemoryManager, data []byte) (BlobRef, error) {
	if uint64(len(data)) > maxDataSize {
		return BlobRef{}, ErrInvalidSize
	}
	b := &Blob{mm: mm, size: uint32(len(data))}
	if len(data) > 0 {
		offset, err := mm.Allocate(uint64(len(data)), false)
		if err != nil {
			return BlobRef{}, err
		}
		b.offset = offset
		copy(b.Bytes(), data)
	}
	return Make(b), nil
}

// Bytes returns the arena-backed payload. Valid only while a strong
// reference exists; after logical death it returns nil.
func (b *Blob) Bytes() []byte {
	if b.offset == 0 {
		return nil
	}
	return (*[maxDataSize]byte)(b.mm.GetPtr(b.offset))[:b.size:b.size]
}

// Len returns the payload length.
func (b *Blob) Len() int {
	if b.offset == 0 {
		return 0
	}
	return int(b.size)
}

// Copy clones the payload into a new independently counted Blob.
func (b *Blob) Copy() (BlobRef, error) {
	return NewBlob(b.mm, b.Bytes())
}

// ReleaseResources returns the payload to the arena. Runs exactly once,
// when the last strong reference is released.
func (b *Blob) ReleaseResources() {
	if b.offset == 0 {
		return
	}
	if err := b.mm.Deallocate(b.offset); err != nil {
		panic(err)
	}
	b.offset = 0
	b.size = 0
}
