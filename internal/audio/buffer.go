// Package audio holds the per-session PCM accumulator and sample helpers.
package audio

import "time"

// Buffer accumulates 16-bit mono PCM for one session and tracks the boundary
// between audio already covered by a final result and pending audio.
//
// Chunks may split a sample; the dangling byte is carried until the next
// Append completes it, so the stored bytes are always sample-aligned.
type Buffer struct {
	sampleRate       int
	sampleWidthBytes int

	data            []byte
	carry           []byte
	processedOffset int

	appendedBytes  int64
	committedBytes int64
}

func NewBuffer(sampleRate, sampleWidthBytes int) *Buffer {
	return &Buffer{
		sampleRate:       sampleRate,
		sampleWidthBytes: sampleWidthBytes,
	}
}

func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.appendedBytes += int64(len(chunk))
	if len(b.carry) > 0 {
		need := b.sampleWidthBytes - len(b.carry)
		if len(chunk) < need {
			b.carry = append(b.carry, chunk...)
			return
		}
		b.data = append(b.data, b.carry...)
		b.data = append(b.data, chunk[:need]...)
		b.carry = b.carry[:0]
		chunk = chunk[need:]
	}
	whole := len(chunk) - len(chunk)%b.sampleWidthBytes
	b.data = append(b.data, chunk[:whole]...)
	b.carry = append(b.carry, chunk[whole:]...)
}

// Len is the number of sample-aligned bytes held, committed or not.
func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) ProcessedOffset() int {
	return b.processedOffset
}

func (b *Buffer) BytesPerSecond() int {
	return b.sampleRate * b.sampleWidthBytes
}

// Duration returns the playback length of the bytes after from.
func (b *Buffer) Duration(from int) time.Duration {
	n := len(b.data) - from
	if n <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(b.BytesPerSecond()))
}

// UncommittedDuration is Duration(ProcessedOffset()).
func (b *Buffer) UncommittedDuration() time.Duration {
	return b.Duration(b.processedOffset)
}

// Uncommitted returns the audio not yet covered by a final result.
func (b *Buffer) Uncommitted() []byte {
	return b.data[b.processedOffset:]
}

// TailWindow returns the most recent window of uncommitted audio. It never
// reaches back before the processed offset.
func (b *Buffer) TailWindow(window time.Duration) []byte {
	windowBytes := int(int64(window) * int64(b.BytesPerSecond()) / int64(time.Second))
	windowBytes -= windowBytes % b.sampleWidthBytes
	start := len(b.data) - windowBytes
	if start < b.processedOffset {
		start = b.processedOffset
	}
	return b.data[start:]
}

// Commit marks everything held as processed and drops it from memory, so
// the offset and the length both return to zero. A carried partial sample is
// kept for the next Append.
func (b *Buffer) Commit() {
	b.committedBytes += int64(len(b.data))
	b.data = b.data[:0]
	b.processedOffset = 0
}

// AppendedBytes counts every byte handed to Append, including carried bytes.
func (b *Buffer) AppendedBytes() int64 {
	return b.appendedBytes
}

func (b *Buffer) CommittedBytes() int64 {
	return b.committedBytes
}
