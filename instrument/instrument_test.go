package instrument

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/classkit/classfile"
	cerrors "github.com/wippyai/classkit/errors"
	"github.com/wippyai/classkit/synth"
	"github.com/wippyai/classkit/trace"
)

func service(t *testing.T) []byte {
	t.Helper()
	b := synth.NewClassBuilder("a/Svc")
	b.AddMethod("run", "()V", nil)
	b.AddMethod("stop", "()V", nil)
	b.AddStaticMethod("count", "()I", 3)
	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return data
}

func hookConfig(methods ...string) Config {
	return Config{Methods: methods, HookOwner: "a/Trace", HookName: "enter"}
}

// body returns the code events of method name as strings.
func body(t *testing.T, data []byte, name string) []string {
	t.Helper()
	cr, err := classfile.NewClassReader(data)
	if err != nil {
		t.Fatalf("NewClassReader: %v", err)
	}
	r := trace.NewRecorder()
	if err := cr.Accept(r, classfile.ReadOptions{}); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	var out []string
	in := false
	for _, e := range r.Events {
		switch {
		case e.Op == "VisitMethod":
			in = e.Args[1] == name
		case in && e.Op == "VisitEnd":
			return out
		case in:
			out = append(out, e.String())
		}
	}
	return out
}

func TestTransform_InsertsHook(t *testing.T) {
	data := service(t)
	out, err := Transform(data, hookConfig("a/Svc.run", "count"))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	tests := []struct {
		method string
		want   []string
	}{
		{"run", []string{
			"VisitCode",
			`VisitLdcInsn "a/Svc.run()V"`,
			"VisitMethodInsn invokestatic a/Trace enter (Ljava/lang/String;)V false",
			"VisitInsn return",
			"VisitMaxs 1 1",
		}},
		{"count", []string{
			"VisitCode",
			`VisitLdcInsn "a/Svc.count()I"`,
			"VisitMethodInsn invokestatic a/Trace enter (Ljava/lang/String;)V false",
			"VisitInsn iconst_3",
			"VisitInsn ireturn",
			"VisitMaxs 1 0",
		}},
		{"stop", []string{
			"VisitCode",
			"VisitInsn return",
			"VisitMaxs 0 1",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, body(t, out, tt.method)); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransform_Selection(t *testing.T) {
	cw := classfile.NewClassWriter(classfile.WriterOptions{ComputeFrames: true})
	cw.Visit(classfile.V1_8, classfile.AccPublic|classfile.AccAbstract, "a/Trace", "", "java/lang/Object", nil)
	for _, name := range []string{"<init>", "work"} {
		mv := cw.VisitMethod(classfile.AccPublic, name, "()V", "", nil)
		mv.VisitCode()
		if name == "<init>" {
			mv.VisitVarInsn(classfile.OpAload, 0)
			mv.VisitMethodInsn(classfile.OpInvokespecial, "java/lang/Object", "<init>", "()V", false)
		}
		mv.VisitInsn(classfile.OpReturn)
		mv.VisitMaxs(0, 0)
		mv.VisitEnd()
	}
	cw.VisitMethod(classfile.AccPublic|classfile.AccAbstract, "todo", "()V", "", nil).VisitEnd()
	mv := cw.VisitMethod(classfile.AccPublic|classfile.AccStatic, "enter", HookDesc, "", nil)
	mv.VisitCode()
	mv.VisitInsn(classfile.OpReturn)
	mv.VisitMaxs(0, 0)
	mv.VisitEnd()
	cw.VisitEnd()
	data, err := cw.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	tests := []struct {
		name string
		cfg  func(c *Config)
		want []string
	}{
		{"all", func(c *Config) {}, []string{"<init>", "work"}},
		{"skip constructors", func(c *Config) { c.SkipConstructors = true }, []string{"work"}},
		{"exclude", func(c *Config) { c.Exclude = NewExactMatcher([]string{"work"}) }, []string{"<init>"}},
		{"matcher", func(c *Config) {
			c.Methods = nil
			c.Matcher = NewExactMatcher([]string{"a/Trace.work"})
		}, []string{"work"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := hookConfig("*")
			tt.cfg(&cfg)
			out, err := Transform(data, cfg)
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			var got []string
			for _, m := range []string{"<init>", "work", "todo", "enter"} {
				if strings.Contains(strings.Join(body(t, out, m), "\n"), "invokestatic a/Trace enter") {
					got = append(got, m)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("instrumented methods mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransform_Idempotent(t *testing.T) {
	cfg := hookConfig("run")
	once, err := Transform(service(t), cfg)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !IsInstrumented(once, cfg) {
		t.Fatal("IsInstrumented = false after Transform")
	}
	twice, err := Transform(once, cfg)
	if err != nil {
		t.Fatalf("second Transform: %v", err)
	}
	if !bytes.Equal(once, twice) {
		t.Error("second Transform changed the class")
	}
}

func TestTransform_Unchanged(t *testing.T) {
	data := service(t)
	cfg := hookConfig("missing")
	out, err := Transform(data, cfg)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !bytes.Equal(data, out) {
		t.Error("class without selected methods was rewritten")
	}
	if IsInstrumented(data, cfg) {
		t.Error("IsInstrumented = true for a plain class")
	}
	if IsInstrumented([]byte{0xca, 0xfe}, cfg) {
		t.Error("IsInstrumented = true for truncated input")
	}
}

func TestTransform_Errors(t *testing.T) {
	if _, err := Transform(service(t), Config{Methods: []string{"*"}}); !errors.Is(err, cerrors.ErrInvalidInput) {
		t.Errorf("missing hook: err = %v, want invalid input", err)
	}
	if _, err := Transform([]byte{1, 2, 3}, hookConfig("*")); !errors.Is(err, cerrors.ErrMalformedInput) {
		t.Errorf("bad class: err = %v, want malformed input", err)
	}
}
