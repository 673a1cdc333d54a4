package classfile

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	cerrors "github.com/wippyai/classkit/errors"
)

func TestSymbolTable_InternIdempotent(t *testing.T) {
	st := NewSymbolTable()

	tests := []struct {
		name string
		add  func() (uint16, error)
	}{
		{"utf8", func() (uint16, error) { return st.AddUTF8("hello") }},
		{"integer", func() (uint16, error) { return st.AddInteger(42) }},
		{"float", func() (uint16, error) { return st.AddFloat(1.5) }},
		{"long", func() (uint16, error) { return st.AddLong(1 << 40) }},
		{"double", func() (uint16, error) { return st.AddDouble(2.25) }},
		{"class", func() (uint16, error) { return st.AddClass("java/lang/String") }},
		{"string", func() (uint16, error) { return st.AddString("hello") }},
		{"field", func() (uint16, error) { return st.AddFieldRef("a/B", "x", "I") }},
		{"method", func() (uint16, error) { return st.AddMethodRef("a/B", "m", "()V", false) }},
		{"interface method", func() (uint16, error) { return st.AddMethodRef("a/B", "m", "()V", true) }},
		{"method type", func() (uint16, error) { return st.AddMethodType("(I)V") }},
		{"handle", func() (uint16, error) {
			return st.AddMethodHandle(Handle{Kind: HInvokeStatic, Owner: "a/B", Name: "m", Desc: "()V"})
		}},
	}

	seen := make(map[uint16]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := tt.add()
			if err != nil {
				t.Fatalf("first add: %v", err)
			}
			second, err := tt.add()
			if err != nil {
				t.Fatalf("second add: %v", err)
			}
			if first != second {
				t.Errorf("indices differ: %d != %d", first, second)
			}
			if other, ok := seen[first]; ok {
				t.Errorf("index %d already used by %s", first, other)
			}
			seen[first] = tt.name
		})
	}
}

func TestSymbolTable_InsertionOrder(t *testing.T) {
	st := NewSymbolTable()
	for i, s := range []string{"a", "b", "c"} {
		idx, err := st.AddUTF8(s)
		if err != nil {
			t.Fatal(err)
		}
		if int(idx) != i+1 {
			t.Errorf("AddUTF8(%q) = %d, want %d", s, idx, i+1)
		}
	}
	if st.Count() != 3 || st.Len() != 4 {
		t.Errorf("Count = %d, Len = %d", st.Count(), st.Len())
	}
}

func TestSymbolTable_WideEntries(t *testing.T) {
	st := NewSymbolTable()
	l, _ := st.AddLong(7)
	next, _ := st.AddInteger(7)
	if l != 1 || next != 3 {
		t.Errorf("long at %d, next at %d; want 1 and 3", l, next)
	}
	if _, ok := st.Entry(2); ok {
		t.Error("slot after a long should be unusable")
	}
	d, _ := st.AddDouble(7)
	if d != 4 || st.Len() != 6 {
		t.Errorf("double at %d, Len %d", d, st.Len())
	}
}

func TestSymbolTable_Capacity(t *testing.T) {
	st := NewSymbolTable()
	for i := 0; i < MaxPoolCount-1; i++ {
		if _, err := st.AddInteger(int32(i)); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}
	if st.Len() != MaxPoolCount {
		t.Fatalf("Len = %d", st.Len())
	}
	before := st.Count()

	_, err := st.AddInteger(-1)
	if !errors.Is(err, cerrors.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want capacity exceeded", err)
	}
	if st.Count() != before || st.Len() != MaxPoolCount {
		t.Error("failed intern must leave the table unchanged")
	}
	if idx, err := st.AddInteger(5); err != nil || idx != 6 {
		t.Errorf("existing entry lookup = %d, %v", idx, err)
	}
}

func TestSymbolTable_WideCapacity(t *testing.T) {
	st := NewSymbolTable()
	for i := 0; i < MaxPoolCount-2; i++ {
		if _, err := st.AddInteger(int32(i)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := st.AddLong(1); !errors.Is(err, cerrors.ErrCapacityExceeded) {
		t.Fatalf("long in the last slot: err = %v", err)
	}
	if _, err := st.AddInteger(-1); err != nil {
		t.Fatalf("single slot should still fit: %v", err)
	}
}

func TestSymbolTable_StringTooLong(t *testing.T) {
	st := NewSymbolTable()
	long := make([]byte, 0x10000)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := st.AddUTF8(string(long)); !errors.Is(err, cerrors.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
	if st.Count() != 0 {
		t.Error("table should be empty")
	}
}

func TestSymbolTable_InternValidatesReferences(t *testing.T) {
	st := NewSymbolTable()
	if _, err := st.Intern(Entry{Tag: TagClass, A: 9}); err == nil {
		t.Error("expected error for a dangling reference")
	}
	i, _ := st.AddInteger(1)
	if _, err := st.Intern(Entry{Tag: TagClass, A: i}); err == nil {
		t.Error("expected error for a reference to the wrong tag")
	}
}

func TestSymbolTable_BootstrapMethods(t *testing.T) {
	st := NewSymbolTable()
	bsm := Handle{Kind: HInvokeStatic, Owner: "java/lang/invoke/LambdaMetafactory", Name: "metafactory", Desc: "(...)"}

	a, err := st.AddBootstrapMethod(bsm, MethodTypeConst("()V"), 3)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := st.AddBootstrapMethod(bsm, MethodTypeConst("()V"), 3)
	c, _ := st.AddBootstrapMethod(bsm, MethodTypeConst("()V"), 4)
	if a != b || a == c {
		t.Errorf("bootstrap indices %d %d %d", a, b, c)
	}
	if st.BootstrapMethodCount() != 2 {
		t.Errorf("BootstrapMethodCount = %d", st.BootstrapMethodCount())
	}

	idx, err := st.AddInvokeDynamic("run", "()Ljava/lang/Runnable;", bsm, MethodTypeConst("()V"), 3)
	if err != nil {
		t.Fatal(err)
	}
	name, desc, h, args, err := st.InvokeDynamic(idx)
	if err != nil {
		t.Fatal(err)
	}
	if name != "run" || desc != "()Ljava/lang/Runnable;" || h != bsm {
		t.Errorf("InvokeDynamic = %s %s %v", name, desc, h)
	}
	if diff := cmp.Diff([]any{MethodTypeConst("()V"), int32(3)}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestSymbolTable_Constant(t *testing.T) {
	st := NewSymbolTable()
	values := []any{
		int32(-3),
		float32(2.5),
		int64(1) << 50,
		float64(-0.125),
		"text",
		ClassConst("java/util/List"),
		MethodTypeConst("(J)I"),
		Handle{Kind: HGetStatic, Owner: "a/B", Name: "f", Desc: "I"},
	}
	for _, v := range values {
		idx, err := st.AddConstant(v)
		if err != nil {
			t.Fatalf("AddConstant(%v): %v", v, err)
		}
		got, err := st.Constant(idx)
		if err != nil {
			t.Fatalf("Constant(%d): %v", idx, err)
		}
		if diff := cmp.Diff(v, got); diff != "" {
			t.Errorf("constant mismatch (-want +got):\n%s", diff)
		}
	}
	if _, err := st.AddConstant(struct{}{}); !errors.Is(err, cerrors.ErrInvalidInput) {
		t.Errorf("unsupported constant: err = %v", err)
	}
}

func TestSymbolTable_Merge(t *testing.T) {
	dst := NewSymbolTable()
	dst.AddUTF8("shared")
	dst.AddClass("a/Only")

	src := NewSymbolTable()
	src.AddLong(99)
	src.AddUTF8("shared")
	field, _ := src.AddFieldRef("x/Y", "shared", "I")
	bsm := Handle{Kind: HInvokeStatic, Owner: "x/Boot", Name: "b", Desc: "()V"}
	indy, _ := src.AddInvokeDynamic("go", "()V", bsm, "arg")

	remap, err := dst.Merge(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(remap) != src.Len() {
		t.Fatalf("len(remap) = %d, want %d", len(remap), src.Len())
	}

	shared, _ := dst.AddUTF8("shared")
	if remap[3] != shared {
		t.Errorf("shared utf8 remapped to %d, want %d", remap[3], shared)
	}
	owner, name, desc, err := dst.MemberRef(remap[field])
	if err != nil || owner != "x/Y" || name != "shared" || desc != "I" {
		t.Errorf("merged field = %s.%s:%s, %v", owner, name, desc, err)
	}
	n, d, h, args, err := dst.InvokeDynamic(remap[indy])
	if err != nil || n != "go" || d != "()V" || h != bsm {
		t.Errorf("merged indy = %s %s %v, %v", n, d, h, err)
	}
	if diff := cmp.Diff([]any{"arg"}, args); diff != "" {
		t.Errorf("merged indy args (-want +got):\n%s", diff)
	}

	again, err := dst.Merge(src)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(remap, again); diff != "" {
		t.Errorf("second merge should be idempotent (-first +second):\n%s", diff)
	}
}

func TestSymbolTable_Clone(t *testing.T) {
	st := NewSymbolTable()
	st.AddClass("a/B")
	c := st.Clone()
	c.AddClass("c/D")
	if st.Count() == c.Count() {
		t.Error("clone shares state with the original")
	}
	idx, _ := c.AddClass("a/B")
	orig, _ := st.AddClass("a/B")
	if idx != orig {
		t.Errorf("clone index %d, original %d", idx, orig)
	}
}
