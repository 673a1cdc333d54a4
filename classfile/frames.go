package classfile

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/classkit/errors"
)

// handlerRange is a resolved exception table entry.
type handlerRange struct {
	start, end, handler int
	typeIdx             uint16
	typ                 string // "" for finally
}

// frameRecord is one computed frame. Lists hold one element per value:
// long and double are not followed by top.
type frameRecord struct {
	off    int
	locals []vtype
	stack  []vtype
}

// frameContext is the input of one frame computation.
type frameContext struct {
	owner     string
	access    int
	name      string
	desc      string
	code      []byte
	handlers  []handlerRange
	symbols   *SymbolTable
	hierarchy Hierarchy
	policy    DeadCodePolicy
	log       *zap.Logger
}

// frameResult is the output of one frame computation. code and handlers
// differ from the input only when dead code was replaced.
type frameResult struct {
	initial   []vtype
	frames    []frameRecord
	code      []byte
	handlers  []handlerRange
	maxStack  int
	maxLocals int
	dead      int
}

type frameState struct {
	locals []vtype
	stack  []vtype
}

func (s *frameState) clone() *frameState {
	return &frameState{
		locals: append([]vtype(nil), s.locals...),
		stack:  append([]vtype(nil), s.stack...),
	}
}

type basicBlock struct {
	start, end  int // byte offsets
	first, last int // instruction indices
	needsFrame  bool
}

type frameEngine struct {
	ctx     *frameContext
	path    []string
	insns   []insn
	blocks  []basicBlock
	blockAt []int32
	entries []*frameState
	queue   []int
	queued  *bitSet

	maxStack  int
	maxLocals int
}

// computeFrames runs the type-flow analysis over resolved bytecode.
func computeFrames(ctx *frameContext) (*frameResult, error) {
	e := &frameEngine{ctx: ctx, path: []string{ctx.owner, ctx.name + ctx.desc}}
	insns, err := decodeAll(ctx.code)
	if err != nil {
		return nil, errors.WithPath(err, e.path...)
	}
	e.insns = insns
	for i := range insns {
		switch insns[i].op {
		case OpJsr, OpJsrW, OpRet:
			return nil, errors.Unsupported(errors.PhaseFrames, e.path,
				fmt.Sprintf("%s at offset %d cannot be combined with computed frames", OpcodeName(insns[i].op), insns[i].off))
		}
	}
	if err := e.buildBlocks(); err != nil {
		return nil, err
	}

	init, err := e.initialState()
	if err != nil {
		return nil, err
	}
	e.maxLocals = len(init.locals)
	for i := range insns {
		if n := localsUsed(&insns[i]); n > e.maxLocals {
			e.maxLocals = n
		}
	}
	if err := e.mergeInto(0, init); err != nil {
		return nil, err
	}
	for len(e.queue) > 0 {
		b := e.queue[0]
		e.queue = e.queue[1:]
		e.queued.clear(b)
		if err := e.runBlock(b); err != nil {
			return nil, err
		}
	}
	return e.result(init), nil
}

// buildBlocks splits the code at jump targets, handler starts and after
// instructions that end a block.
func (e *frameEngine) buildBlocks() error {
	code := e.ctx.code
	starts := newBitSet(len(code))
	frameAt := newBitSet(len(code))
	starts.set(0)
	for _, h := range e.ctx.handlers {
		if h.start >= h.end || h.end > len(code) || h.handler >= len(code) {
			return errors.InvalidInput(errors.PhaseFrames, e.path, fmt.Sprintf("invalid handler range [%d, %d) -> %d", h.start, h.end, h.handler))
		}
		starts.set(h.handler)
		frameAt.set(h.handler)
		starts.set(h.start)
		starts.set(h.end)
	}
	for i := range e.insns {
		in := &e.insns[i]
		if in.isJump() || in.isSwitch() {
			starts.set(in.target)
			frameAt.set(in.target)
			for _, t := range in.targets {
				starts.set(t)
				frameAt.set(t)
			}
		}
		if in.endsBlock() {
			next := in.off + in.size
			starts.set(next)
			if isUnconditional(in.op) || in.op == OpGoto || in.op == OpGotoW {
				frameAt.set(next)
			}
		}
	}

	e.blockAt = make([]int32, len(code)+1)
	for i := range e.blockAt {
		e.blockAt[i] = -1
	}
	cur := -1
	for i := range e.insns {
		in := &e.insns[i]
		if starts.has(in.off) {
			e.blocks = append(e.blocks, basicBlock{start: in.off, first: i, needsFrame: frameAt.has(in.off)})
			cur = len(e.blocks) - 1
			e.blockAt[in.off] = int32(cur)
		}
		e.blocks[cur].last = i
		e.blocks[cur].end = in.off + in.size
	}
	for _, off := range starts.toSlice() {
		if off < len(code) && e.blockAt[off] < 0 {
			return errors.InvalidInput(errors.PhaseFrames, e.path, fmt.Sprintf("branch target %d is not an instruction boundary", off))
		}
	}
	e.entries = make([]*frameState, len(e.blocks))
	e.queued = newBitSet(len(e.blocks))
	return nil
}

// initialState builds the entry frame from the method descriptor.
func (e *frameEngine) initialState() (*frameState, error) {
	locals, err := initialLocals(e.ctx.owner, e.ctx.access, e.ctx.name, e.ctx.desc)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseFrames, e.path, err.Error())
	}
	return &frameState{locals: locals}, nil
}

// initialLocals returns the entry locals of a method in slot form.
func initialLocals(owner string, access int, name, desc string) ([]vtype, error) {
	params, _, err := parseMethodDesc(desc)
	if err != nil {
		return nil, err
	}
	var locals []vtype
	if access&AccStatic == 0 {
		if name == constructor && owner != objectClass {
			locals = append(locals, tThisInit)
		} else {
			locals = append(locals, objType(owner))
		}
	}
	for _, p := range params {
		t := descType(p)
		locals = append(locals, t)
		if t.isWide() {
			locals = append(locals, tTop)
		}
	}
	return locals, nil
}

// mergeInto merges s into the entry frame of block b and queues b if it changed.
func (e *frameEngine) mergeInto(b int, s *frameState) error {
	cur := e.entries[b]
	if cur == nil {
		e.entries[b] = s.clone()
		e.enqueue(b)
		return nil
	}
	if len(cur.stack) != len(s.stack) {
		return errors.InvalidInput(errors.PhaseFrames, e.path,
			fmt.Sprintf("stack height mismatch at offset %d: %d vs %d", e.blocks[b].start, len(cur.stack), len(s.stack)))
	}
	changed := false
	n := len(cur.locals)
	if len(s.locals) < n {
		n = len(s.locals)
		changed = true
	}
	locals := make([]vtype, n)
	for i := 0; i < n; i++ {
		locals[i] = mergeTypes(cur.locals[i], s.locals[i], e.ctx.hierarchy)
		if locals[i] != cur.locals[i] {
			changed = true
		}
	}
	stack := make([]vtype, len(cur.stack))
	for i := range stack {
		stack[i] = mergeTypes(cur.stack[i], s.stack[i], e.ctx.hierarchy)
		if stack[i] != cur.stack[i] {
			changed = true
		}
	}
	if changed {
		e.entries[b] = &frameState{locals: locals, stack: stack}
		e.enqueue(b)
	}
	return nil
}

func (e *frameEngine) enqueue(b int) {
	if !e.queued.has(b) {
		e.queued.set(b)
		e.queue = append(e.queue, b)
	}
}

// runBlock interprets one block from its entry frame and propagates the
// result to its successors and handlers.
func (e *frameEngine) runBlock(b int) error {
	blk := e.blocks[b]
	s := e.entries[b].clone()
	e.noteHeights(s)
	for i := blk.first; i <= blk.last; i++ {
		in := &e.insns[i]
		if err := e.mergeHandlers(in.off, s); err != nil {
			return err
		}
		if err := e.execute(in, s); err != nil {
			return err
		}
		if writesLocals(in.op) {
			if err := e.mergeHandlers(in.off, s); err != nil {
				return err
			}
		}
		e.noteHeights(s)
	}

	last := &e.insns[blk.last]
	switch {
	case last.isSwitch():
		if err := e.mergeAt(last.target, s, last.off); err != nil {
			return err
		}
		for _, t := range last.targets {
			if err := e.mergeAt(t, s, last.off); err != nil {
				return err
			}
		}
		return nil
	case last.isJump():
		if err := e.mergeAt(last.target, s, last.off); err != nil {
			return err
		}
		if last.op == OpGoto || last.op == OpGotoW {
			return nil
		}
	case isUnconditional(last.op):
		return nil
	}
	if b+1 >= len(e.blocks) {
		return errors.InvalidInput(errors.PhaseFrames, e.path, "execution falls off the end of the code")
	}
	return e.mergeInto(b+1, s)
}

func (e *frameEngine) mergeAt(off int, s *frameState, from int) error {
	b := e.blockAt[off]
	if b < 0 {
		return errors.InvalidInput(errors.PhaseFrames, e.path, fmt.Sprintf("jump at %d to invalid offset %d", from, off))
	}
	return e.mergeInto(int(b), s)
}

// writesLocals reports whether op can change the local variable types.
// A handler covering such an instruction sees the locals from both before
// and after it.
func writesLocals(op int) bool {
	switch op {
	case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpIinc, OpInvokespecial:
		return true
	}
	return false
}

// mergeHandlers merges the locals in s into every handler covering off.
func (e *frameEngine) mergeHandlers(off int, s *frameState) error {
	for _, h := range e.ctx.handlers {
		if off < h.start || off >= h.end {
			continue
		}
		catch := throwableClass
		if h.typ != "" {
			catch = h.typ
		}
		hs := &frameState{locals: s.locals, stack: []vtype{objType(catch)}}
		if err := e.mergeInto(int(e.blockAt[h.handler]), hs); err != nil {
			return err
		}
	}
	return nil
}

func (e *frameEngine) noteHeights(s *frameState) {
	if len(s.stack) > e.maxStack {
		e.maxStack = len(s.stack)
	}
	if len(s.locals) > e.maxLocals {
		e.maxLocals = len(s.locals)
	}
}

// result collects frames for live blocks and applies the dead code policy.
func (e *frameEngine) result(init *frameState) *frameResult {
	res := &frameResult{
		initial:  compactTypes(init.locals, true),
		code:     e.ctx.code,
		handlers: e.ctx.handlers,
	}
	var dead []basicBlock
	for i, blk := range e.blocks {
		st := e.entries[i]
		if st == nil {
			dead = append(dead, blk)
			if e.ctx.policy == DeadCodeMarker {
				res.frames = append(res.frames, frameRecord{off: blk.start, stack: []vtype{objType(throwableClass)}})
			}
			continue
		}
		if !blk.needsFrame {
			continue
		}
		res.frames = append(res.frames, frameRecord{
			off:    blk.start,
			locals: compactTypes(st.locals, true),
			stack:  compactTypes(st.stack, false),
		})
	}
	res.maxStack, res.maxLocals, res.dead = e.maxStack, e.maxLocals, len(dead)

	if len(dead) > 0 && e.ctx.policy == DeadCodeMarker {
		code := append([]byte(nil), e.ctx.code...)
		for _, blk := range dead {
			for i := blk.start; i < blk.end-1; i++ {
				code[i] = OpNop
			}
			code[blk.end-1] = OpAthrow
		}
		res.code = code
		res.handlers = stripDeadRanges(e.ctx.handlers, dead)
		if res.maxStack < 1 {
			res.maxStack = 1
		}
		e.ctx.log.Debug("replaced unreachable code",
			zap.String("class", e.ctx.owner),
			zap.String("method", e.ctx.name+e.ctx.desc),
			zap.Int("blocks", len(dead)))
	}
	return res
}

// compactTypes converts a slot list to frame form: long and double lose their
// trailing top, and for locals trailing tops are removed.
func compactTypes(slots []vtype, trim bool) []vtype {
	out := make([]vtype, 0, len(slots))
	for i := 0; i < len(slots); i++ {
		out = append(out, slots[i])
		if slots[i].isWide() {
			i++
		}
	}
	if trim {
		for len(out) > 0 && out[len(out)-1] == tTop {
			out = out[:len(out)-1]
		}
	}
	return out
}

// stripDeadRanges removes dead blocks from handler ranges, splitting ranges
// that have live code on both sides of a dead block.
func stripDeadRanges(handlers []handlerRange, dead []basicBlock) []handlerRange {
	var out []handlerRange
	for _, h := range handlers {
		pieces := []handlerRange{h}
		for _, d := range dead {
			var next []handlerRange
			for _, p := range pieces {
				if d.end <= p.start || d.start >= p.end {
					next = append(next, p)
					continue
				}
				if d.start > p.start {
					q := p
					q.end = d.start
					next = append(next, q)
				}
				if d.end < p.end {
					q := p
					q.start = d.end
					next = append(next, q)
				}
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	return out
}
