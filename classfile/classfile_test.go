package classfile_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/wippyai/classkit/classfile"
	cerrors "github.com/wippyai/classkit/errors"
	"github.com/wippyai/classkit/trace"
)

// sampleClass builds a class that exercises most attributes and
// instruction forms, with frames computed by the writer.
func sampleClass(t *testing.T) []byte {
	t.Helper()
	cw := classfile.NewClassWriter(classfile.WriterOptions{ComputeFrames: true})
	cw.Visit(classfile.V1_8, classfile.AccPublic|classfile.AccSuper, "a/Sample", "", "java/lang/Object", []string{"java/lang/Runnable"})
	cw.VisitSource("Sample.java", "")
	av := cw.VisitAnnotation("La/Marker;", true)
	av.Visit("value", "x")
	av.VisitEnd()
	cw.VisitInnerClass("a/Sample$Inner", "a/Sample", "Inner", classfile.AccStatic)

	fv := cw.VisitField(classfile.AccStatic|classfile.AccFinal, "MAX", "I", "", int32(42))
	fv.VisitEnd()

	mv := cw.VisitMethod(classfile.AccPublic, "<init>", "()V", "", nil)
	mv.VisitCode()
	mv.VisitVarInsn(classfile.OpAload, 0)
	mv.VisitMethodInsn(classfile.OpInvokespecial, "java/lang/Object", "<init>", "()V", false)
	mv.VisitInsn(classfile.OpReturn)
	mv.VisitMaxs(0, 0)
	mv.VisitEnd()

	mv = cw.VisitMethod(classfile.AccPublic|classfile.AccStatic, "run", "(I)I", "", []string{"java/io/IOException"})
	start, end, handler := &classfile.Label{}, &classfile.Label{}, &classfile.Label{}
	loop, exit := &classfile.Label{}, &classfile.Label{}
	caseA, caseB, next := &classfile.Label{}, &classfile.Label{}, &classfile.Label{}
	mv.VisitCode()
	mv.VisitTryCatchBlock(start, end, handler, "java/lang/RuntimeException")
	mv.VisitLabel(start)
	mv.VisitLineNumber(10, start)
	mv.VisitInsn(classfile.OpIconst0)
	mv.VisitVarInsn(classfile.OpIstore, 1)
	mv.VisitLabel(loop)
	mv.VisitVarInsn(classfile.OpIload, 1)
	mv.VisitVarInsn(classfile.OpIload, 0)
	mv.VisitJumpInsn(classfile.OpIfIcmpge, exit)
	mv.VisitVarInsn(classfile.OpIload, 1)
	mv.VisitTableSwitchInsn(0, 1, next, caseA, caseB)
	mv.VisitLabel(caseA)
	mv.VisitLdcInsn("a")
	mv.VisitMethodInsn(classfile.OpInvokestatic, "a/Sample", "log", "(Ljava/lang/String;)V", false)
	mv.VisitJumpInsn(classfile.OpGoto, next)
	mv.VisitLabel(caseB)
	mv.VisitFieldInsn(classfile.OpGetstatic, "a/Sample", "MAX", "I")
	mv.VisitInsn(classfile.OpPop)
	mv.VisitLabel(next)
	mv.VisitIincInsn(1, 1)
	mv.VisitJumpInsn(classfile.OpGoto, loop)
	mv.VisitLabel(exit)
	mv.VisitVarInsn(classfile.OpIload, 1)
	mv.VisitLabel(end)
	mv.VisitInsn(classfile.OpIreturn)
	mv.VisitLabel(handler)
	mv.VisitVarInsn(classfile.OpAstore, 2)
	mv.VisitInsn(classfile.OpIconstM1)
	mv.VisitInsn(classfile.OpIreturn)
	mv.VisitLocalVariable("n", "I", "", start, end, 0)
	mv.VisitMaxs(0, 0)
	mv.VisitEnd()

	mv = cw.VisitMethod(classfile.AccPublic|classfile.AccNative|classfile.AccDeprecated, "nat", "(Ljava/lang/String;)V", "", nil)
	mv.VisitParameter("s", classfile.AccFinal)
	mv.VisitAnnotation("Ljava/lang/Deprecated;", true).VisitEnd()
	mv.VisitParameterAnnotation(0, "La/NotNull;", false).VisitEnd()
	mv.VisitEnd()
	cw.VisitEnd()

	out, err := cw.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return out
}

func record(t *testing.T, data []byte, opts classfile.ReadOptions) []trace.Event {
	t.Helper()
	cr, err := classfile.NewClassReader(data)
	if err != nil {
		t.Fatalf("NewClassReader: %v", err)
	}
	r := trace.NewRecorder()
	if err := cr.Accept(r, opts); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return r.Events
}

func rewrite(t *testing.T, data []byte, opts classfile.WriterOptions) []byte {
	t.Helper()
	cr, err := classfile.NewClassReader(data)
	if err != nil {
		t.Fatalf("NewClassReader: %v", err)
	}
	cw := classfile.NewClassWriter(opts)
	if err := cr.Accept(cw, classfile.ReadOptions{}); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	out, err := cw.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return out
}

func count(events []trace.Event, op string) int {
	n := 0
	for _, e := range events {
		if e.Op == op {
			n++
		}
	}
	return n
}

func TestRoundTrip_Events(t *testing.T) {
	data := sampleClass(t)
	first := record(t, data, classfile.ReadOptions{})
	second := record(t, rewrite(t, data, classfile.WriterOptions{}), classfile.ReadOptions{})
	if diff := trace.Diff(first, second); diff != "" {
		t.Errorf("events changed by round trip (-first +second):\n%s", diff)
	}

	if n := count(first, "VisitFrame"); n == 0 {
		t.Error("expected computed frames in the sample")
	}
	for _, op := range []string{"VisitSource", "VisitInnerClass", "VisitParameter", "VisitParameterAnnotation",
		"VisitTableSwitchInsn", "VisitTryCatchBlock", "VisitLocalVariable", "VisitLineNumber"} {
		if count(first, op) == 0 {
			t.Errorf("no %s event", op)
		}
	}
	var field, native bool
	for _, e := range first {
		if e.Op == "VisitField" && e.Args[1] == "MAX" {
			field = e.Args[len(e.Args)-1] == "int32:42"
		}
		if e.Op == "VisitMethod" && e.Args[1] == "nat" {
			native = e.Args[0] == "0x20101"
		}
	}
	if !field {
		t.Error("constant value of MAX not reported")
	}
	if !native {
		t.Error("deprecated native method flags not reported")
	}
}

func TestRoundTrip_Recompute(t *testing.T) {
	data := sampleClass(t)
	want := record(t, data, classfile.ReadOptions{})
	got := record(t, rewrite(t, data, classfile.WriterOptions{ComputeFrames: true}), classfile.ReadOptions{})
	if diff := trace.Diff(want, got); diff != "" {
		t.Errorf("recomputed frames differ (-want +got):\n%s", diff)
	}
}

// retypedClass is a hand-assembled a/T with one static method m()V:
//
//	Object o = "x";
//	try { o = Integer.valueOf(1); } catch (Exception e) {}
//
// Its StackMapTable is spelled out in retypedFrames.
var retypedFrames = []byte{
	0x00, 0x02, // number_of_entries
	0xff, 0x00, 0x0b, // full_frame at 11
	0x00, 0x01, 0x07, 0x00, 0x04, // locals [java/lang/Object]
	0x00, 0x01, 0x07, 0x00, 0x12, // stack [java/lang/Exception]
	0x00, // same_frame at 12
}

func retypedClass() []byte {
	var b bytes.Buffer
	u1 := func(v ...byte) { b.Write(v) }
	utf8 := func(s string) {
		u1(1, byte(len(s)>>8), byte(len(s)))
		b.WriteString(s)
	}
	u1(0xca, 0xfe, 0xba, 0xbe, 0x00, 0x00, 0x00, 0x34)
	u1(0x00, 0x13)
	utf8("a/T")                    // #1
	u1(7, 0x00, 0x01)              // #2
	utf8("java/lang/Object")       // #3
	u1(7, 0x00, 0x03)              // #4
	utf8("m")                      // #5
	utf8("()V")                    // #6
	utf8("Code")                   // #7
	utf8("StackMapTable")          // #8
	utf8("x")                      // #9
	u1(8, 0x00, 0x09)              // #10
	utf8("java/lang/Integer")      // #11
	u1(7, 0x00, 0x0b)              // #12
	utf8("valueOf")                // #13
	utf8("(I)Ljava/lang/Integer;") // #14
	u1(12, 0x00, 0x0d, 0x00, 0x0e) // #15
	u1(10, 0x00, 0x0c, 0x00, 0x0f) // #16
	utf8("java/lang/Exception")    // #17
	u1(7, 0x00, 0x11)              // #18

	u1(0x00, 0x21, 0x00, 0x02, 0x00, 0x04) // access, this, super
	u1(0x00, 0x00, 0x00, 0x00)             // interfaces, fields
	u1(0x00, 0x01)                         // methods
	u1(0x00, 0x09, 0x00, 0x05, 0x00, 0x06, 0x00, 0x01)

	u1(0x00, 0x07, 0x00, 0x00, 0x00, 0x37) // Code, length 55
	u1(0x00, 0x01, 0x00, 0x02)             // max_stack, max_locals
	u1(0x00, 0x00, 0x00, 0x0d)
	u1(
		0x12, 0x0a, // ldc "x"
		0x4b,             // astore_0
		0x04,             // iconst_1
		0xb8, 0x00, 0x10, // invokestatic Integer.valueOf
		0x4b,             // astore_0
		0xa7, 0x00, 0x04, // goto 12
		0x4c,             // astore_1
		0xb1,             // return
	)
	u1(0x00, 0x01, 0x00, 0x03, 0x00, 0x08, 0x00, 0x0b, 0x00, 0x12)
	u1(0x00, 0x01, 0x00, 0x08, 0x00, 0x00, 0x00, byte(len(retypedFrames)))
	u1(retypedFrames...)

	u1(0x00, 0x00) // class attributes
	return b.Bytes()
}

func TestRoundTrip_HandAssembledFrames(t *testing.T) {
	data := retypedClass()
	want := record(t, data, classfile.ReadOptions{})
	for _, frame := range []string{
		"VisitFrame full [java/lang/Object] [java/lang/Exception]",
		"VisitFrame same [] []",
	} {
		found := false
		for _, e := range want {
			if e.String() == frame {
				found = true
			}
		}
		if !found {
			t.Errorf("decoded events lack %q", frame)
		}
	}

	cr, err := classfile.NewClassReader(data)
	if err != nil {
		t.Fatal(err)
	}
	cw := classfile.NewClassWriterFrom(cr, classfile.WriterOptions{ComputeFrames: true})
	if err := cr.Accept(cw, classfile.ReadOptions{SkipFrames: true}); err != nil {
		t.Fatal(err)
	}
	out, err := cw.Finish()
	if err != nil {
		t.Fatal(err)
	}
	attr := append([]byte{0x00, 0x08, 0x00, 0x00, 0x00, byte(len(retypedFrames))}, retypedFrames...)
	if !bytes.Contains(out, attr) {
		t.Errorf("recomputed StackMapTable differs from the hand-written one:\n% x", out)
	}
	if diff := trace.Diff(want, record(t, out, classfile.ReadOptions{})); diff != "" {
		t.Errorf("round trip differs (-want +got):\n%s", diff)
	}
}

func TestNewClassWriterFrom_PassThrough(t *testing.T) {
	data := sampleClass(t)
	cr, err := classfile.NewClassReader(data)
	if err != nil {
		t.Fatal(err)
	}
	cw := classfile.NewClassWriterFrom(cr, classfile.WriterOptions{})
	if err := cr.Accept(cw, classfile.ReadOptions{}); err != nil {
		t.Fatal(err)
	}
	out, err := cw.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("pass-through changed the class: %d bytes in, %d bytes out", len(data), len(out))
	}
}

type renamer struct {
	classfile.ClassAdapter
	from, to string
}

func (r *renamer) VisitMethod(access int, name, desc, signature string, exceptions []string) classfile.MethodVisitor {
	if name == r.from {
		name = r.to
	}
	return r.ClassAdapter.VisitMethod(access, name, desc, signature, exceptions)
}

func TestAdapter_RenameMethod(t *testing.T) {
	data := sampleClass(t)
	cr, err := classfile.NewClassReader(data)
	if err != nil {
		t.Fatal(err)
	}
	cw := classfile.NewClassWriterFrom(cr, classfile.WriterOptions{})
	if err := cr.Accept(&renamer{ClassAdapter: classfile.ClassAdapter{Next: cw}, from: "run", to: "execute"}, classfile.ReadOptions{}); err != nil {
		t.Fatal(err)
	}
	out, err := cw.Finish()
	if err != nil {
		t.Fatal(err)
	}

	want := record(t, data, classfile.ReadOptions{})
	for i, e := range want {
		if e.Op == "VisitMethod" && e.Args[1] == "run" {
			args := append([]string(nil), e.Args...)
			args[1] = "execute"
			want[i] = trace.Event{Op: e.Op, Args: args}
		}
	}
	got := record(t, out, classfile.ReadOptions{})
	if diff := trace.Diff(want, got); diff != "" {
		t.Errorf("renamed class events (-want +got):\n%s", diff)
	}
}

func TestReadOptions(t *testing.T) {
	data := sampleClass(t)

	skipCode := record(t, data, classfile.ReadOptions{SkipCode: true})
	if n := count(skipCode, "VisitCode"); n != 0 {
		t.Errorf("SkipCode: %d VisitCode events", n)
	}
	if n := count(skipCode, "VisitMethod"); n != 3 {
		t.Errorf("SkipCode: %d methods, want 3", n)
	}

	skipDebug := record(t, data, classfile.ReadOptions{SkipDebug: true})
	for _, op := range []string{"VisitSource", "VisitLineNumber", "VisitLocalVariable", "VisitParameter"} {
		if n := count(skipDebug, op); n != 0 {
			t.Errorf("SkipDebug: %d %s events", n, op)
		}
	}

	if n := count(record(t, data, classfile.ReadOptions{SkipFrames: true}), "VisitFrame"); n != 0 {
		t.Errorf("SkipFrames: %d frames", n)
	}

	expanded := record(t, data, classfile.ReadOptions{ExpandFrames: true})
	if count(expanded, "VisitFrame") == 0 {
		t.Fatal("ExpandFrames: no frames")
	}
	for _, e := range expanded {
		if e.Op == "VisitFrame" && e.Args[0] != "new" {
			t.Errorf("ExpandFrames: frame %v is not expanded", e)
		}
	}
}

func TestReader_Errors(t *testing.T) {
	data := sampleClass(t)
	version70 := append([]byte(nil), data...)
	version70[6], version70[7] = 0, 70
	badMagic := append([]byte(nil), data...)
	badMagic[0] = 0

	tests := []struct {
		name string
		data []byte
		want []error
	}{
		{"unsupported version", version70, []error{cerrors.ErrUnsupportedVersion, cerrors.ErrMalformedInput}},
		{"truncated", data[:len(data)/2], []error{cerrors.ErrMalformedInput}},
		{"header only", data[:10], []error{cerrors.ErrMalformedInput}},
		{"empty", nil, []error{cerrors.ErrMalformedInput}},
		{"bad magic", badMagic, []error{cerrors.ErrMalformedInput}},
		{"trailing bytes", append(append([]byte(nil), data...), 0), []error{cerrors.ErrMalformedInput}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr, err := classfile.NewClassReader(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if cr != nil {
				t.Error("reader returned with an error")
			}
			for _, w := range tt.want {
				if !errors.Is(err, w) {
					t.Errorf("err = %v, want %v", err, w)
				}
			}
		})
	}
}

func newWriter(version int, opts classfile.WriterOptions) *classfile.ClassWriter {
	cw := classfile.NewClassWriter(opts)
	cw.Visit(version, classfile.AccPublic|classfile.AccSuper, "a/T", "", "java/lang/Object", nil)
	return cw
}

func TestWriter_Errors(t *testing.T) {
	t.Run("method too large", func(t *testing.T) {
		cw := newWriter(classfile.V1_8, classfile.WriterOptions{})
		mv := cw.VisitMethod(classfile.AccStatic, "big", "()V", "", nil)
		mv.VisitCode()
		for i := 0; i < 70000; i++ {
			mv.VisitInsn(classfile.OpNop)
		}
		mv.VisitInsn(classfile.OpReturn)
		mv.VisitMaxs(0, 0)
		mv.VisitEnd()
		_, err := cw.Finish()
		if !errors.Is(err, cerrors.ErrMethodTooLarge) {
			t.Fatalf("err = %v", err)
		}
		if !strings.Contains(err.Error(), "big()V") {
			t.Errorf("error %q should name the method", err)
		}
	})

	t.Run("class constant before 1.5", func(t *testing.T) {
		cw := newWriter(classfile.V1_4, classfile.WriterOptions{})
		mv := cw.VisitMethod(classfile.AccStatic, "m", "()V", "", nil)
		mv.VisitCode()
		mv.VisitLdcInsn(classfile.ClassConst("a/B"))
		if _, err := cw.Finish(); !errors.Is(err, cerrors.ErrUnsupported) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("invokedynamic before 1.7", func(t *testing.T) {
		cw := newWriter(classfile.V1_6, classfile.WriterOptions{})
		mv := cw.VisitMethod(classfile.AccStatic, "m", "()V", "", nil)
		mv.VisitCode()
		bsm := classfile.Handle{Kind: classfile.HInvokeStatic, Owner: "a/B", Name: "bsm", Desc: "()V"}
		mv.VisitInvokeDynamicInsn("x", "()V", bsm)
		if _, err := cw.Finish(); !errors.Is(err, cerrors.ErrUnsupported) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("unplaced label", func(t *testing.T) {
		cw := newWriter(classfile.V1_8, classfile.WriterOptions{})
		mv := cw.VisitMethod(classfile.AccStatic, "m", "()V", "", nil)
		mv.VisitCode()
		mv.VisitJumpInsn(classfile.OpGoto, &classfile.Label{})
		mv.VisitMaxs(0, 0)
		_, err := cw.Finish()
		var e *cerrors.Error
		if !errors.As(err, &e) || e.Kind != cerrors.KindUnresolvedLabel {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("version too new", func(t *testing.T) {
		cw := newWriter(70, classfile.WriterOptions{})
		if _, err := cw.Finish(); !errors.Is(err, cerrors.ErrUnsupportedVersion) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("no class", func(t *testing.T) {
		if _, err := classfile.NewClassWriter(classfile.WriterOptions{}).Finish(); !errors.Is(err, cerrors.ErrInvalidInput) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestWriter_DeadCode(t *testing.T) {
	cw := newWriter(classfile.V1_8, classfile.WriterOptions{ComputeFrames: true})
	mv := cw.VisitMethod(classfile.AccStatic, "m", "()V", "", nil)
	l := &classfile.Label{}
	mv.VisitCode()
	mv.VisitJumpInsn(classfile.OpGoto, l)
	mv.VisitInsn(classfile.OpIconst0)
	mv.VisitInsn(classfile.OpPop)
	mv.VisitLabel(l)
	mv.VisitInsn(classfile.OpReturn)
	mv.VisitMaxs(0, 0)
	mv.VisitEnd()
	out, err := cw.Finish()
	if err != nil {
		t.Fatal(err)
	}

	var insns []string
	for _, e := range record(t, out, classfile.ReadOptions{}) {
		if e.Op == "VisitInsn" || e.Op == "VisitJumpInsn" {
			insns = append(insns, e.Args[0])
		}
	}
	want := "goto nop athrow return"
	if got := strings.Join(insns, " "); got != want {
		t.Errorf("instructions = %q, want %q", got, want)
	}
}

func TestWriter_PromotedConditionalRecomputesFrames(t *testing.T) {
	cw := newWriter(classfile.V1_8, classfile.WriterOptions{})
	mv := cw.VisitMethod(classfile.AccStatic, "m", "(I)V", "", nil)
	l := &classfile.Label{}
	mv.VisitCode()
	mv.VisitVarInsn(classfile.OpIload, 0)
	mv.VisitJumpInsn(classfile.OpIfeq, l)
	for i := 0; i < 40000; i++ {
		mv.VisitInsn(classfile.OpNop)
	}
	mv.VisitLabel(l)
	mv.VisitFrame(classfile.Frame{Kind: classfile.FSame})
	mv.VisitInsn(classfile.OpReturn)
	mv.VisitMaxs(1, 1)
	mv.VisitEnd()
	out, err := cw.Finish()
	if err != nil {
		t.Fatal(err)
	}

	events := record(t, out, classfile.ReadOptions{})
	if n := count(events, "VisitFrame"); n != 2 {
		t.Errorf("frames = %d, want 2", n)
	}
	var jumps []string
	for _, e := range events {
		if e.Op == "VisitJumpInsn" {
			jumps = append(jumps, e.Args[0])
		}
	}
	if got := strings.Join(jumps, " "); got != "ifne goto_w" {
		t.Errorf("jumps = %q, want %q", got, "ifne goto_w")
	}
}
