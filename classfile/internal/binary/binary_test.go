package binary

import (
	"bytes"
	"errors"
	"testing"
)

func TestReaderFixedWidth(t *testing.T) {
	data := []byte{
		0xCA, 0xFE, 0xBA, 0xBE, // u4
		0x00, 0x41, // u2
		0xFF, 0xFE, // s2 = -2
		0x80,                                           // s1
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, // u8
	}
	r := NewReader(data)

	u4, err := r.ReadU4()
	if err != nil || u4 != 0xCAFEBABE {
		t.Fatalf("ReadU4: got 0x%x, %v", u4, err)
	}
	u2, err := r.ReadU2()
	if err != nil || u2 != 0x41 {
		t.Fatalf("ReadU2: got %d, %v", u2, err)
	}
	s2, err := r.ReadS2()
	if err != nil || s2 != -2 {
		t.Fatalf("ReadS2: got %d, %v", s2, err)
	}
	s1, err := r.ReadS1()
	if err != nil || s1 != -128 {
		t.Fatalf("ReadS1: got %d, %v", s1, err)
	}
	u8, err := r.ReadU8()
	if err != nil || u8 != 0x0102030405060708 {
		t.Fatalf("ReadU8: got 0x%x, %v", u8, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", r.Remaining())
	}

	_, err = r.ReadU2()
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReaderSeekAndSkip(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	if err := r.Skip(2); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if r.Position() != 2 {
		t.Errorf("Position = %d, want 2", r.Position())
	}
	if err := r.Skip(5); err == nil {
		t.Error("expected error skipping past end")
	}
	if err := r.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	b, _ := r.ReadBytes(4)
	if !bytes.Equal(b, []byte{1, 2, 3, 4}) {
		t.Errorf("ReadBytes = %v", b)
	}
	if err := r.Seek(5); err == nil {
		t.Error("expected error seeking past end")
	}
}

func TestAbsoluteReads(t *testing.T) {
	data := []byte{0x00, 0xFF, 0xF0, 0x00, 0x00, 0x01}
	if got := U2At(data, 1); got != 0xFFF0 {
		t.Errorf("U2At = 0x%x", got)
	}
	if got := S2At(data, 1); got != -16 {
		t.Errorf("S2At = %d", got)
	}
	if got := U4At(data, 2); got != 0xF0000001 {
		t.Errorf("U4At = 0x%x", got)
	}
}

func TestWriterPatch(t *testing.T) {
	w := NewWriter()
	w.U1(0xA7)
	w.U2(0)
	w.U4(0xCAFEBABE)
	w.PatchU2(1, 0x1234)
	w.PatchU4(3, 0xDEADBEEF)

	want := []byte{0xA7, 0x12, 0x34, 0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Bytes = %x, want %x", w.Bytes(), want)
	}
}

func TestWriterSection(t *testing.T) {
	sub := NewWriter()
	sub.U2(7)
	w := NewWriter()
	w.Section(sub)
	want := []byte{0, 0, 0, 2, 0, 7}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Bytes = %x, want %x", w.Bytes(), want)
	}
}

func TestModifiedUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		enc  []byte
	}{
		{"ascii", "java/lang/Object", []byte("java/lang/Object")},
		{"empty", "", []byte{}},
		{"nul", "a\x00b", []byte{'a', 0xC0, 0x80, 'b'}},
		{"two byte", "é", []byte{0xC3, 0xA9}},
		{"three byte", "€", []byte{0xE2, 0x82, 0xAC}},
		{"supplementary", "😀", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
		{"lone surrogate", "\xed\xa0\x80x", []byte{0xED, 0xA0, 0x80, 'x'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := EncodeModifiedUTF8(tt.in)
			if !bytes.Equal(enc, tt.enc) {
				t.Fatalf("Encode = %x, want %x", enc, tt.enc)
			}
			dec, err := DecodeModifiedUTF8(enc)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if dec != tt.in {
				t.Errorf("Decode = %q, want %q", dec, tt.in)
			}
		})
	}
}

func TestModifiedUTF8Invalid(t *testing.T) {
	bad := [][]byte{
		{0x80},
		{0xC3},
		{0xE2, 0x82},
		{0xF0, 0x9F, 0x98, 0x80},
	}
	for _, b := range bad {
		if _, err := DecodeModifiedUTF8(b); !errors.Is(err, ErrInvalidModifiedUTF8) {
			t.Errorf("Decode(%x): expected ErrInvalidModifiedUTF8, got %v", b, err)
		}
	}
}

func TestReaderUTF8(t *testing.T) {
	w := NewWriter()
	if err := w.UTF8("héllo"); err != nil {
		t.Fatalf("UTF8: %v", err)
	}
	r := NewReader(w.Bytes())
	s, err := r.ReadUTF8()
	if err != nil {
		t.Fatalf("ReadUTF8: %v", err)
	}
	if s != "héllo" {
		t.Errorf("ReadUTF8 = %q", s)
	}
}

func TestWriterUTF8TooLong(t *testing.T) {
	w := NewWriter()
	if err := w.UTF8(string(bytes.Repeat([]byte{'a'}, 0x10000))); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("expected ErrStringTooLong, got %v", err)
	}
}
