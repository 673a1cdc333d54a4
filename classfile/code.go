package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// labelCell tracks where a label was placed in the fixed byte stream.
// The final offset adds the sizes of the variable-width items emitted
// before the label.
type labelCell struct {
	label  *Label
	pos    int
	items  int
	placed bool
}

type itemKind uint8

const (
	itemJump itemKind = iota
	itemSwitch
)

// codeItem is an instruction whose encoded width depends on the layout.
type codeItem struct {
	kind itemKind
	pos  int
	op   int
	// target is the jump label handle, or the switch default.
	target int
	// wide is set when the jump is (or has been promoted to) its 32-bit form.
	wide bool

	low     int
	keys    []int32
	targets []int

	size int
}

// codeBuffer accumulates one method's bytecode. Fixed-width instructions
// go to buf directly; jumps and switches are kept as items and laid out by
// resolve.
type codeBuffer struct {
	buf     []byte
	items   []codeItem
	cells   []labelCell
	handles map[*Label]int

	offsets []int // item offsets from the last layout
	prefix  []int // prefix[i] is the total size of items[:i]

	promotions   int
	promotedCond bool
	resolved     bool
}

func newCodeBuffer() *codeBuffer {
	return &codeBuffer{handles: make(map[*Label]int)}
}

// handle returns the cell index for l, creating an unplaced cell if needed.
func (c *codeBuffer) handle(l *Label) int {
	if h, ok := c.handles[l]; ok {
		return h
	}
	h := len(c.cells)
	c.cells = append(c.cells, labelCell{label: l})
	c.handles[l] = h
	return h
}

// place marks l at the current position.
func (c *codeBuffer) place(l *Label) (int, error) {
	h := c.handle(l)
	cell := &c.cells[h]
	if cell.placed {
		return h, fmt.Errorf("label placed twice")
	}
	cell.pos, cell.items, cell.placed = len(c.buf), len(c.items), true
	return h, nil
}

// mark places a fresh internal label at the current position.
func (c *codeBuffer) mark() int {
	h, _ := c.place(&Label{})
	return h
}

func (c *codeBuffer) u1(v int) {
	c.buf = append(c.buf, byte(v))
}

func (c *codeBuffer) u2(v int) {
	c.buf = append(c.buf, byte(v>>8), byte(v))
}

func (c *codeBuffer) u4(v int) {
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(v))
}

func (c *codeBuffer) op1(op, a int) {
	c.buf = append(c.buf, byte(op), byte(a))
}

func (c *codeBuffer) op2(op, a int) {
	c.buf = append(c.buf, byte(op), byte(a>>8), byte(a))
}

// addJump records a jump to l. goto_w and jsr_w stay wide.
func (c *codeBuffer) addJump(op int, l *Label) {
	it := codeItem{kind: itemJump, pos: len(c.buf), op: op, target: c.handle(l)}
	if op == OpGotoW || op == OpJsrW {
		it.wide = true
	}
	c.items = append(c.items, it)
}

// addTableSwitch records a tableswitch over [low, low+len(labels)).
func (c *codeBuffer) addTableSwitch(low int, dflt *Label, labels []*Label) {
	it := codeItem{kind: itemSwitch, pos: len(c.buf), op: OpTableswitch, target: c.handle(dflt), low: low}
	for _, l := range labels {
		it.targets = append(it.targets, c.handle(l))
	}
	c.items = append(c.items, it)
}

// addLookupSwitch records a lookupswitch. keys must be sorted.
func (c *codeBuffer) addLookupSwitch(dflt *Label, keys []int32, labels []*Label) {
	it := codeItem{kind: itemSwitch, pos: len(c.buf), op: OpLookupswitch, target: c.handle(dflt), keys: keys}
	for _, l := range labels {
		it.targets = append(it.targets, c.handle(l))
	}
	c.items = append(c.items, it)
}

func (it *codeItem) sizeAt(off int) int {
	if it.kind == itemSwitch {
		n := 1 + switchPadding(off)
		if it.op == OpTableswitch {
			return n + 12 + 4*len(it.targets)
		}
		return n + 8 + 8*len(it.targets)
	}
	switch {
	case !it.wide:
		return 3
	case it.op == OpGoto, it.op == OpGotoW, it.op == OpJsr, it.op == OpJsrW:
		return 5
	}
	return 8 // if<!c> +8; goto_w
}

// layout assigns offsets to every item under the current promotion state.
func (c *codeBuffer) layout() int {
	c.offsets = c.offsets[:0]
	c.prefix = append(c.prefix[:0], 0)
	shift := 0
	for i := range c.items {
		it := &c.items[i]
		off := it.pos + shift
		it.size = it.sizeAt(off)
		shift += it.size
		c.offsets = append(c.offsets, off)
		c.prefix = append(c.prefix, shift)
	}
	return len(c.buf) + shift
}

// offset returns the offset of label handle h under the last layout.
func (c *codeBuffer) offset(h int) int {
	cell := &c.cells[h]
	return cell.pos + c.prefix[cell.items]
}

// unplaced returns the first referenced label that was never placed.
func (c *codeBuffer) unplaced() (*Label, bool) {
	for i := range c.cells {
		if !c.cells[i].placed {
			return c.cells[i].label, true
		}
	}
	return nil, false
}

// resolve lays out the code, promoting short jumps whose distance does not
// fit in 16 bits until no more promotions are needed, and returns the
// final bytecode. Promotion only grows items, so the loop ends after at
// most len(items)+1 layouts.
func (c *codeBuffer) resolve() ([]byte, error) {
	if l, ok := c.unplaced(); ok {
		return nil, fmt.Errorf("label %p referenced but never placed", l)
	}
	total := 0
	for {
		total = c.layout()
		changed := false
		for i := range c.items {
			it := &c.items[i]
			if it.kind != itemJump || it.wide {
				continue
			}
			d := c.offset(it.target) - c.offsets[i]
			if d < math.MinInt16 || d > math.MaxInt16 {
				it.wide = true
				changed = true
				c.promotions++
				if isConditionalJump(it.op) {
					c.promotedCond = true
				}
			}
		}
		if !changed {
			break
		}
	}

	out := make([]byte, 0, total)
	prev := 0
	for i := range c.items {
		it := &c.items[i]
		out = append(out, c.buf[prev:it.pos]...)
		prev = it.pos
		off := c.offsets[i]
		out = c.emitItem(out, it, off)
	}
	out = append(out, c.buf[prev:]...)
	c.resolved = true
	return out, nil
}

func (c *codeBuffer) emitItem(out []byte, it *codeItem, off int) []byte {
	s4 := func(v int) {
		out = binary.BigEndian.AppendUint32(out, uint32(int32(v)))
	}
	if it.kind == itemSwitch {
		out = append(out, byte(it.op))
		for i := switchPadding(off); i > 0; i-- {
			out = append(out, 0)
		}
		s4(c.offset(it.target) - off)
		if it.op == OpTableswitch {
			s4(it.low)
			s4(it.low + len(it.targets) - 1)
			for _, t := range it.targets {
				s4(c.offset(t) - off)
			}
			return out
		}
		s4(len(it.targets))
		for i, t := range it.targets {
			s4(int(it.keys[i]))
			s4(c.offset(t) - off)
		}
		return out
	}

	dst := c.offset(it.target)
	switch {
	case !it.wide:
		d := dst - off
		out = append(out, byte(it.op), byte(d>>8), byte(d))
	case it.op == OpGoto || it.op == OpGotoW:
		out = append(out, OpGotoW)
		s4(dst - off)
	case it.op == OpJsr || it.op == OpJsrW:
		out = append(out, OpJsrW)
		s4(dst - off)
	default:
		out = append(out, byte(invertJump(it.op)), 0, 8, OpGotoW)
		s4(dst - (off + 3))
	}
	return out
}
