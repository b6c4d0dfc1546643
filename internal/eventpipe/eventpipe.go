// Package eventpipe implements the fixed-size, tagged-union event
// record and the byte pipe that carries it from arbitrary caller
// threads to the SDK thread. Records are sized well under PIPE_BUF so
// a single write is atomic; golang.org/x/sys/unix creates the pipe.
// PIPE_BUF itself is not queried: recordSize is far below the POSIX
// minimum of 512 bytes.
package eventpipe

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Type tags the union variant a Record carries.
type Type uint8

const (
	Key Type = iota
	Pointer
	Scroll
	Clipboard
	Disconnect
)

func (t Type) String() string {
	switch t {
	case Key:
		return "KEY"
	case Pointer:
		return "POINTER"
	case Scroll:
		return "SCROLL"
	case Clipboard:
		return "CLIPBOARD"
	case Disconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// recordSize is the fixed wire size of one Record: 1 type byte + 3
// padding + two int32 fields + one uint32 field + one uint64 field.
const recordSize = 24

// Record is the tagged-union event record. ClipboardPayloadID is a
// handle into a Payloads store rather than a raw pointer: Go has no
// equivalent of transferring heap-pointer ownership across a byte
// pipe, so the same "reader frees after dispatch" contract is
// expressed as "reader calls Payloads.Take, which removes the entry".
type Record struct {
	Type Type

	KeySym  uint32
	Pressed bool

	X, Y int32
	Mask uint8

	ScrollDelta int8

	ClipboardPayloadID uint64
}

func (r Record) marshal() [recordSize]byte {
	var buf [recordSize]byte
	buf[0] = byte(r.Type)
	switch r.Type {
	case Key:
		binary.LittleEndian.PutUint32(buf[4:8], r.KeySym)
		if r.Pressed {
			buf[8] = 1
		}
	case Pointer:
		binary.LittleEndian.PutUint32(buf[4:8], uint32(r.X))
		binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Y))
		buf[12] = r.Mask
	case Scroll:
		buf[4] = byte(r.ScrollDelta)
	case Clipboard:
		binary.LittleEndian.PutUint64(buf[16:24], r.ClipboardPayloadID)
	case Disconnect:
		// no payload
	}
	return buf
}

func unmarshal(buf [recordSize]byte) Record {
	r := Record{Type: Type(buf[0])}
	switch r.Type {
	case Key:
		r.KeySym = binary.LittleEndian.Uint32(buf[4:8])
		r.Pressed = buf[8] != 0
	case Pointer:
		r.X = int32(binary.LittleEndian.Uint32(buf[4:8]))
		r.Y = int32(binary.LittleEndian.Uint32(buf[8:12]))
		r.Mask = buf[12]
	case Scroll:
		r.ScrollDelta = int8(buf[4])
	case Clipboard:
		r.ClipboardPayloadID = binary.LittleEndian.Uint64(buf[16:24])
	}
	return r
}

// Payloads is the heap-owned storage for clipboard text referenced by
// Record.ClipboardPayloadID: the writer Stores text and embeds the
// returned id in a Clipboard record; the reader Takes it, which both
// retrieves and frees it, an explicit ownership-transfer contract for
// data too large to embed directly in a fixed-size record.
type Payloads struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64][]byte
}

func NewPayloads() *Payloads {
	return &Payloads{entries: make(map[uint64][]byte)}
}

func (p *Payloads) Store(data []byte) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.entries[id] = data
	return id
}

// Take retrieves and removes the payload for id. ok is false if the
// id is unknown (already taken, or never stored).
func (p *Payloads) Take(id uint64) (data []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok = p.entries[id]
	delete(p.entries, id)
	return data, ok
}

// Pipe wraps an OS pipe pair dedicated to carrying Records. Multiple
// goroutines may call Write concurrently (multi-producer); exactly one
// goroutine should call Read (single-consumer).
type Pipe struct {
	readFD  int
	writeFD int
}

// New creates a close-on-exec pipe. recordSize writes are atomic
// because PIPE_BUF is always >= 512, far larger than recordSize; the
// pipe's size is left at the OS default and PIPE_BUF is not queried.
func New() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("eventpipe: pipe2: %w", err)
	}
	return &Pipe{readFD: fds[0], writeFD: fds[1]}, nil
}

// ReadFD exposes the read end for use in a select() loop (see
// internal/sdkbackend).
func (p *Pipe) ReadFD() int { return p.readFD }

// SetWriteNonblocking marks the write end non-blocking so Write's
// retry loop never stalls a caller thread indefinitely; back-pressure
// manifests as partial writes that Write retries in a tight loop.
func (p *Pipe) SetWriteNonblocking() error {
	return unix.SetNonblock(p.writeFD, true)
}

// Write atomically writes one Record. Writes of size <= PIPE_BUF are
// atomic with respect to other writers; partial writes (EAGAIN on a
// non-blocking fd, or short writes under backpressure) are retried
// until the full record has been written.
func (p *Pipe) Write(r Record) error {
	buf := r.marshal()
	remaining := buf[:]
	for len(remaining) > 0 {
		n, err := unix.Write(p.writeFD, remaining)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("eventpipe: write: %w", err)
		}
		remaining = remaining[n:]
	}
	return nil
}

// Read blocks until one full Record has been read.
func (p *Pipe) Read() (Record, error) {
	var buf [recordSize]byte
	remaining := buf[:]
	for len(remaining) > 0 {
		n, err := unix.Read(p.readFD, remaining)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Record{}, fmt.Errorf("eventpipe: read: %w", err)
		}
		if n == 0 {
			return Record{}, fmt.Errorf("eventpipe: pipe closed")
		}
		remaining = remaining[n:]
	}
	return unmarshal(buf), nil
}

// Close closes both ends. Safe to call once the SDK thread has been
// joined.
func (p *Pipe) Close() error {
	err1 := unix.Close(p.readFD)
	err2 := unix.Close(p.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
