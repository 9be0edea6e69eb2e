package pcm

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestDrainConcatenatesFramesInOrder(t *testing.T) {
	b := NewBuffer()

	var want bytes.Buffer
	for i := 0; i < 10; i++ {
		frame := bytes.Repeat([]byte{byte(i)}, 100+i)
		if err := b.Append(frame); err != nil {
			t.Fatalf("append frame %d: %v", i, err)
		}
		want.Write(frame)
	}

	if b.Frames() != 10 {
		t.Errorf("Frames() = %d, want 10", b.Frames())
	}
	if b.Len() != want.Len() {
		t.Errorf("Len() = %d, want %d", b.Len(), want.Len())
	}

	got, err := b.Drain()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != want.Len() {
		t.Fatalf("drained %d bytes, want %d", len(got), want.Len())
	}
	if !bytes.Equal(got, want.Bytes()) {
		t.Error("drained blob is not the frames concatenated in append order")
	}
}

func TestDrainEmptyBufferIsNotAnError(t *testing.T) {
	b := NewBuffer()

	got, err := b.Drain()
	if err != nil {
		t.Fatalf("drain of empty buffer: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("drained %d bytes from empty buffer, want 0", len(got))
	}
}

func TestAppendAfterDrainFails(t *testing.T) {
	b := NewBuffer()
	if err := b.Append([]byte("audio")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Drain(); err != nil {
		t.Fatal(err)
	}

	err := b.Append([]byte("late"))
	if !errors.Is(err, ErrBufferSealed) {
		t.Errorf("append after drain = %v, want ErrBufferSealed", err)
	}
}

func TestSecondDrainFails(t *testing.T) {
	b := NewBuffer()
	if _, err := b.Drain(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Drain(); !errors.Is(err, ErrAlreadyDrained) {
		t.Errorf("second drain = %v, want ErrAlreadyDrained", err)
	}
}

func TestAppendDoesNotAliasCallerFrame(t *testing.T) {
	b := NewBuffer()
	frame := []byte{1, 2, 3, 4}
	if err := b.Append(frame); err != nil {
		t.Fatal(err)
	}
	frame[0] = 99

	got, err := b.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 {
		t.Error("buffer contents changed when the caller reused its frame slice")
	}
}

func TestManySmallFrames(t *testing.T) {
	b := NewBuffer()
	total := 0
	for i := 0; i < 1000; i++ {
		frame := []byte(fmt.Sprintf("%04d", i))
		if err := b.Append(frame); err != nil {
			t.Fatal(err)
		}
		total += len(frame)
	}
	got, err := b.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != total {
		t.Errorf("drained %d bytes, want %d", len(got), total)
	}
}
