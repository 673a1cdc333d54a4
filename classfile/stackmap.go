package classfile

import (
	bin "github.com/wippyai/classkit/classfile/internal/binary"
	"github.com/wippyai/classkit/errors"
)

// stackMapWriter encodes frames with offset deltas relative to the previous frame.
type stackMapWriter struct {
	symbols *SymbolTable
	w       *bin.Writer
	count   int
	prevOff int
	prev    []vtype
}

func newStackMapWriter(symbols *SymbolTable, initial []vtype) *stackMapWriter {
	return &stackMapWriter{symbols: symbols, w: bin.NewWriter(), prevOff: -1, prev: initial}
}

func (m *stackMapWriter) delta(off int) int {
	if m.prevOff < 0 {
		return off
	}
	return off - m.prevOff - 1
}

func (m *stackMapWriter) writeType(v vtype) error {
	m.w.U1(v.tag)
	switch v.tag {
	case ItemObject:
		idx, err := m.symbols.AddClass(v.name)
		if err != nil {
			return err
		}
		m.w.U2(idx)
	case ItemUninitialized:
		m.w.U2(uint16(v.off))
	}
	return nil
}

func (m *stackMapWriter) writeTypes(ts []vtype) error {
	for _, t := range ts {
		if err := m.writeType(t); err != nil {
			return err
		}
	}
	return nil
}

// add encodes one frame in the most compact form relative to the previous one.
func (m *stackMapWriter) add(f frameRecord) error {
	d := m.delta(f.off)
	prev := m.prev
	m.prev, m.prevOff = f.locals, f.off
	m.count++

	same := equalTypes(prev, f.locals)
	switch {
	case len(f.stack) == 0 && same:
		if d < 64 {
			m.w.U1(uint8(sameFrame + d))
		} else {
			m.w.U1(sameFrameExtended)
			m.w.U2(uint16(d))
		}
		return nil
	case len(f.stack) == 1 && same:
		if d < 64 {
			m.w.U1(uint8(sameLocals1StackItemFrame + d))
		} else {
			m.w.U1(sameLocals1StackItemFrameExt)
			m.w.U2(uint16(d))
		}
		return m.writeType(f.stack[0])
	case len(f.stack) == 0:
		k := len(f.locals) - len(prev)
		switch {
		case k > 0 && k <= 3 && equalTypes(prev, f.locals[:len(prev)]):
			m.w.U1(uint8(appendFrame + k - 1))
			m.w.U2(uint16(d))
			return m.writeTypes(f.locals[len(prev):])
		case k < 0 && k >= -3 && equalTypes(prev[:len(f.locals)], f.locals):
			m.w.U1(uint8(chopFrame + 3 + k))
			m.w.U2(uint16(d))
			return nil
		}
	}
	m.w.U1(fullFrame)
	m.w.U2(uint16(d))
	m.w.U2(uint16(len(f.locals)))
	if err := m.writeTypes(f.locals); err != nil {
		return err
	}
	m.w.U2(uint16(len(f.stack)))
	return m.writeTypes(f.stack)
}

// addRaw encodes a frame exactly in the form the caller gave.
func (m *stackMapWriter) addRaw(kind, off int, locals, stack []vtype, chopped int) error {
	d := m.delta(off)
	m.prevOff = off
	m.count++
	switch kind {
	case FSame:
		if d < 64 {
			m.w.U1(uint8(d))
		} else {
			m.w.U1(sameFrameExtended)
			m.w.U2(uint16(d))
		}
		return nil
	case FSame1:
		if len(stack) != 1 {
			return badFrame(off, "same_locals_1_stack_item frame with %d stack items", len(stack))
		}
		if d < 64 {
			m.w.U1(uint8(sameLocals1StackItemFrame + d))
		} else {
			m.w.U1(sameLocals1StackItemFrameExt)
			m.w.U2(uint16(d))
		}
		return m.writeType(stack[0])
	case FChop:
		if chopped < 1 || chopped > 3 || chopped > len(m.prev) {
			return badFrame(off, "chop frame removing %d locals", chopped)
		}
		m.prev = m.prev[:len(m.prev)-chopped]
		m.w.U1(uint8(chopFrame + 3 - chopped))
		m.w.U2(uint16(d))
		return nil
	case FAppend:
		if len(locals) < 1 || len(locals) > 3 {
			return badFrame(off, "append frame with %d locals", len(locals))
		}
		m.prev = append(m.prev[:len(m.prev):len(m.prev)], locals...)
		m.w.U1(uint8(appendFrame + len(locals) - 1))
		m.w.U2(uint16(d))
		return m.writeTypes(locals)
	}
	m.prev = locals
	m.w.U1(fullFrame)
	m.w.U2(uint16(d))
	m.w.U2(uint16(len(locals)))
	if err := m.writeTypes(locals); err != nil {
		return err
	}
	m.w.U2(uint16(len(stack)))
	return m.writeTypes(stack)
}

func badFrame(off int, detail string, args ...any) error {
	return errors.New(errors.PhaseFrames, errors.KindInvalidInput).Offset(off).Detail(detail, args...).Build()
}

// bytes returns the StackMapTable attribute body.
func (m *stackMapWriter) bytes() []byte {
	out := bin.NewWriter()
	out.U2(uint16(m.count))
	out.WriteBytes(m.w.Bytes())
	return out.Bytes()
}

func equalTypes(a, b []vtype) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
