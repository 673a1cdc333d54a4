package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated is returned when a read runs past the end of the input.
var ErrTruncated = io.ErrUnexpectedEOF

// Reader is a big-endian cursor over an immutable byte slice.
// Reads never copy; returned slices alias the input.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current byte position.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the total input length.
func (r *Reader) Len() int {
	return len(r.data)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Seek moves the cursor to an absolute position.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return r.wrapError(fmt.Errorf("seek to %d outside [0, %d]", pos, len(r.data)))
	}
	r.pos = pos
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || n > r.Remaining() {
		return r.wrapError(ErrTruncated)
	}
	r.pos += n
	return nil
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, r.wrapError(ErrTruncated)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, r.wrapError(ErrTruncated)
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU1 reads an unsigned byte.
func (r *Reader) ReadU1() (uint8, error) {
	return r.ReadByte()
}

// ReadS1 reads a signed byte.
func (r *Reader) ReadS1() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

// ReadU2 reads a big-endian uint16.
func (r *Reader) ReadU2() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, r.wrapError(ErrTruncated)
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadS2 reads a big-endian int16.
func (r *Reader) ReadS2() (int16, error) {
	v, err := r.ReadU2()
	return int16(v), err
}

// ReadU4 reads a big-endian uint32.
func (r *Reader) ReadU4() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, r.wrapError(ErrTruncated)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadS4 reads a big-endian int32.
func (r *Reader) ReadS4() (int32, error) {
	v, err := r.ReadU4()
	return int32(v), err
}

// ReadU8 reads a big-endian uint64.
func (r *Reader) ReadU8() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, r.wrapError(ErrTruncated)
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadUTF8 reads a u2-length-prefixed modified UTF-8 string.
func (r *Reader) ReadUTF8() (string, error) {
	n, err := r.ReadU2()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	s, err := DecodeModifiedUTF8(b)
	if err != nil {
		return "", r.wrapError(err)
	}
	return s, nil
}

// U1At reads a byte at an absolute offset without moving the cursor.
// Callers must bounds-check.
func U1At(data []byte, off int) uint8 {
	return data[off]
}

// U2At reads a big-endian uint16 at an absolute offset.
func U2At(data []byte, off int) uint16 {
	return binary.BigEndian.Uint16(data[off:])
}

// S2At reads a big-endian int16 at an absolute offset.
func S2At(data []byte, off int) int16 {
	return int16(binary.BigEndian.Uint16(data[off:]))
}

// U4At reads a big-endian uint32 at an absolute offset.
func U4At(data []byte, off int) uint32 {
	return binary.BigEndian.Uint32(data[off:])
}

// S4At reads a big-endian int32 at an absolute offset.
func S4At(data []byte, off int) int32 {
	return int32(binary.BigEndian.Uint32(data[off:]))
}

// U8At reads a big-endian uint64 at an absolute offset.
func U8At(data []byte, off int) uint64 {
	return binary.BigEndian.Uint64(data[off:])
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.pos, err)
}

// ParseError represents an error during binary parsing with position information.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("class: %s at position %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("class: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WrapError creates a ParseError with the current position.
func (r *Reader) WrapError(section string, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &ParseError{
		Position: r.pos,
		Section:  section,
		Err:      err,
	}
}
