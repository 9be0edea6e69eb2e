package pcm

import (
	"errors"
	"sync"
)

// ErrBufferSealed is returned by Append after the buffer has been drained.
var ErrBufferSealed = errors.New("audio buffer sealed")

// ErrAlreadyDrained is returned by Drain if it is called more than once.
var ErrAlreadyDrained = errors.New("audio buffer already drained")

// Buffer accumulates raw PCM frames for one session. Append is cheap and
// never touches I/O; Drain freezes the buffer and hands back everything
// appended so far as one contiguous blob.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	frames int
	sealed bool
}

func NewBuffer() *Buffer {
	return &Buffer{
		// Room for a couple seconds of 16 kHz 16-bit mono before growing.
		data: make([]byte, 0, 64*1024),
	}
}

func (b *Buffer) Append(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrBufferSealed
	}

	b.data = append(b.data, frame...)
	b.frames++
	return nil
}

// Drain seals the buffer and returns its contents. Draining a buffer that
// never saw a frame returns an empty blob, not an error.
func (b *Buffer) Drain() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil, ErrAlreadyDrained
	}

	b.sealed = true
	data := b.data
	b.data = nil
	return data, nil
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *Buffer) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}
