package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// maxFrameSize bounds a single decoded frame, guarding against a corrupt or
// hostile length prefix causing an unbounded allocation.
const maxFrameSize = 64 << 20

// FrameWriter encodes values as length-delimited gob frames: a 4-byte
// big-endian length prefix followed by the gob encoding of the value.
type FrameWriter struct {
	w *bufio.Writer
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: bufio.NewWriter(w)}
}

// WriteFrame encodes v and writes it, prefixed by its length, into the
// buffer; nothing is guaranteed to reach the underlying writer until Flush.
// A caller may therefore write several frames per Flush (see runtime's
// runBatchedPeerWriter) or flush after every frame.
func (fw *FrameWriter) WriteFrame(v any) error {
	var lenPrefix [4]byte
	// gob.NewEncoder writes directly to an io.Writer; to prefix with a
	// length we must encode to a buffer first.
	var sizer bytes.Buffer
	if err := gob.NewEncoder(&sizer).Encode(v); err != nil {
		return fmt.Errorf("wire: encode frame: %w", err)
	}
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(sizer.Len()))
	if _, err := fw.w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := fw.w.Write(sizer.Bytes()); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// Flush flushes the underlying buffered writer.
func (fw *FrameWriter) Flush() error {
	return fw.w.Flush()
}

// FrameReader decodes length-delimited gob frames written by FrameWriter.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadFrame reads the next frame and gob-decodes it into v, a pointer to
// the expected type.
func (fr *FrameReader) ReadFrame(v any) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(fr.r, lenPrefix[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(lenPrefix[:])
	if size > maxFrameSize {
		return fmt.Errorf("wire: frame of %d bytes exceeds maximum of %d", size, maxFrameSize)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return fmt.Errorf("wire: read frame body: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return fmt.Errorf("wire: decode frame: %w", err)
	}
	return nil
}
