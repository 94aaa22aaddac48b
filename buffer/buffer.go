// File: buffer/buffer.go
// Author: momentics <momentics@gmail.com>
//
// Growable byte buffer with explicit spare-capacity access, so event-loop
// reads can land directly in the tail without an intermediate copy.

package buffer

// Buffer is a growable byte buffer. The zero value is empty and ready
// for use.
type Buffer struct {
	b []byte
}

// Reserve guarantees capacity for at least n more bytes.
func (b *Buffer) Reserve(n int) {
	if cap(b.b)-len(b.b) >= n {
		return
	}
	grown := make([]byte, len(b.b), 2*cap(b.b)+n)
	copy(grown, b.b)
	b.b = grown
}

// Append adds p to the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.b = append(b.b, p...)
}

// AppendString adds s to the end of the buffer.
func (b *Buffer) AppendString(s string) {
	b.b = append(b.b, s...)
}

// Tail returns the spare capacity between length and capacity. Bytes
// written there become part of the buffer after Extend.
func (b *Buffer) Tail() []byte {
	return b.b[len(b.b):cap(b.b)]
}

// Extend grows the length by n bytes previously written into Tail.
func (b *Buffer) Extend(n int) {
	b.b = b.b[:len(b.b)+n]
}

// Bytes returns the buffer contents. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.b }

// Len returns the number of bytes held.
func (b *Buffer) Len() int { return len(b.b) }

// Cap returns the current capacity.
func (b *Buffer) Cap() int { return cap(b.b) }

// Reset truncates the buffer to zero length, keeping its storage.
func (b *Buffer) Reset() { b.b = b.b[:0] }

// String returns the contents as a string.
func (b *Buffer) String() string { return string(b.b) }
