// Package balloc allocates memory inside a caller-supplied buffer. It
// backs intrusively counted objects whose storage must be freed at the
// exact point the reference-counting protocol dictates, rather than
// whenever the garbage collector gets around to it.
package balloc

import (
	"errors"
	"fmt"
	"unsafe"
)

var (
	ErrOutOfMemory   = errors.New("Not enough space allocating memory")
	ErrInvalidSize   = errors.New("The requested size is invalid")
	ErrInvalidOffset = errors.New("The offset is not an allocated position")
)

const maxBufferSize = 0x8000000000
const alignmentBytes = 8
const alignmentBytesMinusOne = alignmentBytes - 1

// Every allocation is prefixed by an 8-byte header holding its total
// chunk size, so Deallocate needs only the position.
const headerSize = uint64(8)

// MemoryManager is the allocation surface pointee types hold on to.
type MemoryManager interface {
	GetPtr(pos uint64) unsafe.Pointer
	Allocate(size uint64, zero bool) (uint64, error)
	Deallocate(pos uint64) error
	GetFree() uint64
	GetUsed() uint64
	GetCapacity() uint64
}

// BufferAllocator hands out aligned chunks from a preallocated buffer and
// keeps freed chunks on a first-fit free list.
type BufferAllocator struct {
	buffer         *[maxBufferSize]byte
	bufferSize     uint64
	firstFreeByte  uint64
	firstFreeChunk uint64 // position of first free chunk header, 0 if none
	used           uint64
}

var _ MemoryManager = (*BufferAllocator)(nil)

// NewBufferAllocator creates an allocator over the given buffer. The
// buffer size must be a multiple of the alignment.
func NewBufferAllocator(buf unsafe.Pointer, size uint64) (*BufferAllocator, error) {
	if size&alignmentBytesMinusOne != 0 {
		return nil, ErrInvalidSize
	}
	b := &BufferAllocator{
		buffer:     (*[maxBufferSize]byte)(buf),
		bufferSize: size,
		// Position 0 is reserved so it can serve as the null offset.
		firstFreeByte: alignmentBytes,
	}
	return b, nil
}

// SetBuffer points the allocator at a grown copy of its buffer. All
// positions handed out so far stay valid because they are offsets.
func (b *BufferAllocator) SetBuffer(buf unsafe.Pointer, size uint64) error {
	if size&alignmentBytesMinusOne != 0 || size < b.bufferSize {
		return ErrInvalidSize
	}
	b.buffer = (*[maxBufferSize]byte)(buf)
	b.bufferSize = size
	return nil
}

func (b *BufferAllocator) GetPtr(pos uint64) unsafe.Pointer {
	return unsafe.Pointer(&b.buffer[pos])
}

func (b *BufferAllocator) GetCapacity() uint64 {
	return b.bufferSize
}

func (b *BufferAllocator) GetUsed() uint64 {
	return b.used
}

func (b *BufferAllocator) GetFree() uint64 {
	free := b.bufferSize - b.firstFreeByte
	for pos := b.firstFreeChunk; pos != 0; pos = b.chunkNext(pos) {
		free += b.chunkSize(pos)
	}
	return free
}

func (b *BufferAllocator) chunkSize(pos uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(&b.buffer[pos]))
}

func (b *BufferAllocator) setChunkSize(pos, size uint64) {
	*(*uint64)(unsafe.Pointer(&b.buffer[pos])) = size
}

func (b *BufferAllocator) chunkNext(pos uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(&b.buffer[pos+headerSize]))
}

func (b *BufferAllocator) setChunkNext(pos, next uint64) {
	*(*uint64)(unsafe.Pointer(&b.buffer[pos+headerSize])) = next
}

// Allocate returns the position of a new chunk of at least size bytes,
// zeroed if requested.
func (b *BufferAllocator) Allocate(size uint64, zero bool) (uint64, error) {
	if size == 0 {
		return 0, ErrInvalidSize
	}

	total := headerSize + size
	if total&alignmentBytesMinusOne != 0 {
		total += alignmentBytes
		total &= ^uint64(alignmentBytesMinusOne)
	}

	pos := b.takeFreeChunk(total)
	if pos == 0 {
		if b.firstFreeByte+total > b.bufferSize {
			return 0, ErrOutOfMemory
		}
		pos = b.firstFreeByte
		b.firstFreeByte += total
		b.setChunkSize(pos, total)
	}

	b.used += b.chunkSize(pos)
	p := pos + headerSize
	if zero {
		chunk := b.buffer[p : pos+b.chunkSize(pos)]
		for i := range chunk {
			chunk[i] = 0
		}
	}
	return p, nil
}

// takeFreeChunk pops the first free chunk that fits, splitting off the
// remainder when it is big enough to hold another chunk. Returns 0 when
// nothing on the list fits.
func (b *BufferAllocator) takeFreeChunk(total uint64) uint64 {
	prev := uint64(0)
	for pos := b.firstFreeChunk; pos != 0; pos = b.chunkNext(pos) {
		size := b.chunkSize(pos)
		if size < total {
			prev = pos
			continue
		}

		if size-total >= headerSize+alignmentBytes {
			rest := pos + total
			b.setChunkSize(rest, size-total)
			b.setChunkNext(rest, b.chunkNext(pos))
			b.setChunkSize(pos, total)
			b.unlinkChunk(prev, rest)
		} else {
			b.unlinkChunk(prev, b.chunkNext(pos))
		}
		return pos
	}
	return 0
}

func (b *BufferAllocator) unlinkChunk(prev, next uint64) {
	if prev == 0 {
		b.firstFreeChunk = next
	} else {
		b.setChunkNext(prev, next)
	}
}

// Deallocate returns the chunk at pos to the free list.
func (b *BufferAllocator) Deallocate(pos uint64) error {
	if pos < alignmentBytes+headerSize || pos&alignmentBytesMinusOne != 0 {
		return ErrInvalidOffset
	}
	chunk := pos - headerSize
	size := b.chunkSize(chunk)
	if size == 0 || chunk+size > b.bufferSize {
		return ErrInvalidOffset
	}

	b.used -= size
	b.setChunkNext(chunk, b.firstFreeChunk)
	b.firstFreeChunk = chunk
	return nil
}

// PrintFreeChunks dumps the free list, for inspection from tools.
func (b *BufferAllocator) PrintFreeChunks() {
	fmt.Printf("Free chunks (tail space %d):\n", b.bufferSize-b.firstFreeByte)
	for pos := b.firstFreeChunk; pos != 0; pos = b.chunkNext(pos) {
		fmt.Printf(" chunk at %d size %d\n", pos, b.chunkSize(pos))
	}
}
