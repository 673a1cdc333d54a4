package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrStringTooLong is returned when a modified UTF-8 string exceeds 65535 bytes.
var ErrStringTooLong = errors.New("modified UTF-8 string exceeds 65535 bytes")

// Writer provides buffered big-endian writing utilities for class file encoding.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes. The slice aliases the buffer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reset discards all written bytes.
func (w *Writer) Reset() {
	w.buf.Reset()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// U1 writes an unsigned byte.
func (w *Writer) U1(v uint8) {
	w.buf.WriteByte(v)
}

// U2 writes a big-endian uint16.
func (w *Writer) U2(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// U4 writes a big-endian uint32.
func (w *Writer) U4(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// U8 writes a big-endian uint64.
func (w *Writer) U8(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// PatchU2 overwrites two bytes at pos.
func (w *Writer) PatchU2(pos int, v uint16) {
	binary.BigEndian.PutUint16(w.buf.Bytes()[pos:], v)
}

// PatchU4 overwrites four bytes at pos.
func (w *Writer) PatchU4(pos int, v uint32) {
	binary.BigEndian.PutUint32(w.buf.Bytes()[pos:], v)
}

// UTF8 writes a u2-length-prefixed modified UTF-8 string.
func (w *Writer) UTF8(s string) error {
	enc := EncodeModifiedUTF8(s)
	if len(enc) > 0xFFFF {
		return ErrStringTooLong
	}
	w.U2(uint16(len(enc)))
	w.buf.Write(enc)
	return nil
}

// Section writes a u4 length followed by the contents of sub.
func (w *Writer) Section(sub *Writer) {
	w.U4(uint32(sub.Len()))
	w.buf.Write(sub.Bytes())
}
