package binary

import (
	"errors"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrInvalidModifiedUTF8 is returned for byte sequences that are not modified UTF-8.
var ErrInvalidModifiedUTF8 = errors.New("invalid modified UTF-8")

// DecodeModifiedUTF8 converts the class file string encoding to a Go string.
// Surrogate pairs are combined into a single rune. A lone surrogate is kept
// as its 3-byte form so that it survives a round-trip.
func DecodeModifiedUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		u, n, err := decodeUnit(b[i:])
		if err != nil {
			return "", err
		}
		i += n
		if utf16.IsSurrogate(rune(u)) && u < 0xDC00 && i < len(b) {
			if lo, m, err := decodeUnit(b[i:]); err == nil && lo >= 0xDC00 && lo <= 0xDFFF {
				out = utf8.AppendRune(out, utf16.DecodeRune(rune(u), rune(lo)))
				i += m
				continue
			}
		}
		if utf16.IsSurrogate(rune(u)) {
			out = appendSurrogate(out, u)
			continue
		}
		out = utf8.AppendRune(out, rune(u))
	}
	return string(out), nil
}

func decodeUnit(b []byte) (uint16, int, error) {
	c := b[0]
	switch {
	case c < 0x80:
		return uint16(c), 1, nil
	case c&0xE0 == 0xC0:
		if len(b) < 2 || b[1]&0xC0 != 0x80 {
			return 0, 0, ErrInvalidModifiedUTF8
		}
		return uint16(c&0x1F)<<6 | uint16(b[1]&0x3F), 2, nil
	case c&0xF0 == 0xE0:
		if len(b) < 3 || b[1]&0xC0 != 0x80 || b[2]&0xC0 != 0x80 {
			return 0, 0, ErrInvalidModifiedUTF8
		}
		return uint16(c&0x0F)<<12 | uint16(b[1]&0x3F)<<6 | uint16(b[2]&0x3F), 3, nil
	}
	return 0, 0, ErrInvalidModifiedUTF8
}

func appendSurrogate(out []byte, u uint16) []byte {
	return append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6)&0x3F, 0x80|byte(u)&0x3F)
}

// EncodeModifiedUTF8 converts a Go string to the class file string encoding.
func EncodeModifiedUTF8(s string) []byte {
	simple := true
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] >= 0x80 {
			simple = false
			break
		}
	}
	if simple {
		return []byte(s)
	}

	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); {
		c := s[i]
		if c == 0 {
			out = append(out, 0xC0, 0x80)
			i++
			continue
		}
		if c < 0x80 {
			out = append(out, c)
			i++
			continue
		}
		// lone surrogate kept by DecodeModifiedUTF8
		if c == 0xED && i+2 < len(s) && s[i+1] >= 0xA0 && s[i+1] <= 0xBF && s[i+2]&0xC0 == 0x80 {
			out = append(out, s[i], s[i+1], s[i+2])
			i += 3
			continue
		}
		r, n := utf8.DecodeRuneInString(s[i:])
		i += n
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			out = appendSurrogate(out, uint16(hi))
			out = appendSurrogate(out, uint16(lo))
			continue
		}
		out = utf8.AppendRune(out, r)
	}
	return out
}

// ModifiedUTF8Len returns the encoded length of s.
func ModifiedUTF8Len(s string) int {
	return len(EncodeModifiedUTF8(s))
}
