// Package channel implements the bounded SPSC ring the leader ships
// action frames through. The ring lives in a file under the shared-memory
// root; the leader is the single producer, the follower the single
// consumer, and neither side ever blocks.
package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ringMagic  = uint32(0x70747263) // "ptrc"
	hdrBytes   = 192
	offSize    = 4
	offWrite   = 64  // producer cache line
	offRead    = 128 // consumer cache line
	frameHdr   = 4
	DefaultCap = 1 << 20
)

var (
	ErrBadRing  = errors.New("not a follower channel")
	ErrRingSize = errors.New("ring capacity must be a power of two")
)

// Ring is one mapped channel endpoint. The same type serves producer and
// consumer; discipline is by convention (leader calls Put, follower Get).
type Ring struct {
	f    *os.File
	mem  []byte
	size uint64
}

// Create makes a fresh ring at path. The consumer side creates the ring;
// the producer finds it by Open. cap must be a power of two.
func Create(path string, cap int) (*Ring, error) {
	if cap <= 0 || cap&(cap-1) != 0 {
		return nil, ErrRingSize
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(hdrBytes + cap)); err != nil {
		f.Close()
		return nil, err
	}
	r, err := mapRing(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	binary.LittleEndian.PutUint32(r.mem[0:], ringMagic)
	binary.LittleEndian.PutUint32(r.mem[offSize:], uint32(cap))
	r.size = uint64(cap)
	return r, nil
}

// Open maps an existing ring. Fails until the consumer has created it.
func Open(path string) (*Ring, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	r, err := mapRing(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if binary.LittleEndian.Uint32(r.mem[0:]) != ringMagic {
		r.Close()
		return nil, ErrBadRing
	}
	size := uint64(binary.LittleEndian.Uint32(r.mem[offSize:]))
	if size == 0 || size&(size-1) != 0 || uint64(len(r.mem)) < hdrBytes+size {
		r.Close()
		return nil, fmt.Errorf("%w: capacity %d", ErrBadRing, size)
	}
	r.size = size
	return r, nil
}

func mapRing(f *os.File) (*Ring, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() < hdrBytes {
		return nil, ErrBadRing
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &Ring{f: f, mem: mem}, nil
}

func (r *Ring) Close() error {
	err := unix.Munmap(r.mem)
	r.mem = nil
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (r *Ring) cursor(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&r.mem[off]))
}

// Put appends one frame. Returns false when the frame does not fit; the
// caller re-queues and retries next tick.
func (r *Ring) Put(frame []byte) bool {
	need := uint64(frameHdr + len(frame))
	w := atomic.LoadUint64(r.cursor(offWrite))
	rd := atomic.LoadUint64(r.cursor(offRead))
	if r.size-(w-rd) < need {
		return false
	}
	var hdr [frameHdr]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(frame)))
	r.copyIn(w, hdr[:])
	r.copyIn(w+frameHdr, frame)
	atomic.StoreUint64(r.cursor(offWrite), w+need)
	return true
}

// Get removes and returns the next frame, or false when the ring is
// empty.
func (r *Ring) Get() ([]byte, bool) {
	rd := atomic.LoadUint64(r.cursor(offRead))
	w := atomic.LoadUint64(r.cursor(offWrite))
	if w == rd {
		return nil, false
	}
	var hdr [frameHdr]byte
	r.copyOut(rd, hdr[:])
	n := uint64(binary.LittleEndian.Uint32(hdr[:]))
	frame := make([]byte, n)
	r.copyOut(rd+frameHdr, frame)
	atomic.StoreUint64(r.cursor(offRead), rd+frameHdr+n)
	return frame, true
}

func (r *Ring) copyIn(pos uint64, b []byte) {
	mask := r.size - 1
	off := pos & mask
	data := r.mem[hdrBytes : hdrBytes+r.size]
	n := copy(data[off:], b)
	if n < len(b) {
		copy(data, b[n:])
	}
}

func (r *Ring) copyOut(pos uint64, b []byte) {
	mask := r.size - 1
	off := pos & mask
	data := r.mem[hdrBytes : hdrBytes+r.size]
	n := copy(b, data[off:])
	if n < len(b) {
		copy(b[n:], data)
	}
}
