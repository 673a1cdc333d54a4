package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"

	"github.com/wippyai/classkit/classfile"
	cerrors "github.com/wippyai/classkit/errors"
	"github.com/wippyai/classkit/instrument"
	"github.com/wippyai/classkit/synth"
)

type entry struct {
	name string
	data []byte
}

func class(t *testing.T, name, super string, iface bool) []byte {
	t.Helper()
	b := synth.NewClassBuilder(name)
	if super != "" {
		b.SetSuper(super)
	}
	if iface {
		b.SetAccess(classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract)
		b.OmitConstructor()
	} else {
		b.AddMethod("run", "()V", nil)
	}
	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build %s: %v", name, err)
	}
	return data
}

func testJar(t *testing.T) ([]entry, []byte) {
	t.Helper()
	entries := []entry{
		{"META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\n")},
		{"a/A.class", class(t, "a/A", "", false)},
		{"a/B.class", class(t, "a/B", "a/A", false)},
		{"README.txt", []byte("hello")},
		{"a/I.class", class(t, "a/I", "", true)},
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return entries, buf.Bytes()
}

func readJar(t *testing.T, data []byte) []entry {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var out []entry
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, entry{f.Name, b})
	}
	return out
}

func names(entries []entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

var hook = instrument.Config{Methods: []string{"run"}, HookOwner: "a/Trace", HookName: "enter"}

func instrumentAll(name string, data []byte) ([]byte, error) {
	return instrument.Transform(data, hook)
}

func process(t *testing.T, jar []byte, fn Func, opts Options) (*Stats, []entry) {
	t.Helper()
	var out bytes.Buffer
	stats, err := Process(context.Background(), bytes.NewReader(jar), int64(len(jar)), &out, fn, opts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return stats, readJar(t, out.Bytes())
}

func TestProcess(t *testing.T) {
	in, jar := testJar(t)
	stats, out := process(t, jar, instrumentAll, Options{Workers: 2})

	if diff := cmp.Diff(names(in), names(out)); diff != "" {
		t.Errorf("entry order changed (-want +got):\n%s", diff)
	}
	want := Stats{Entries: 5, Transformed: 3, Copied: 2}
	if diff := cmp.Diff(want, *stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	for i, e := range out {
		switch e.name {
		case "a/A.class", "a/B.class":
			if !instrument.IsInstrumented(e.data, hook) {
				t.Errorf("%s not instrumented", e.name)
			}
		default:
			if !bytes.Equal(e.data, in[i].data) {
				t.Errorf("%s changed", e.name)
			}
		}
	}
}

func rawEntries(t *testing.T, data []byte) map[string]*zip.File {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	out := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		out[f.Name] = f
	}
	return out
}

func rawBytes(t *testing.T, f *zip.File) []byte {
	t.Helper()
	r, err := f.OpenRaw()
	if err != nil {
		t.Fatalf("OpenRaw %s: %v", f.Name, err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read %s: %v", f.Name, err)
	}
	return b
}

func TestProcess_CopiesCompressedBytes(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct {
		name   string
		method uint16
		data   []byte
	}{
		{"notes.txt", zip.Store, []byte("stored, not deflated")},
		{"data.txt", zip.Deflate, bytes.Repeat([]byte("classkit "), 200)},
		{"a/A.class", zip.Deflate, class(t, "a/A", "", false)},
	} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	jar := buf.Bytes()

	var out bytes.Buffer
	stats, err := Process(context.Background(), bytes.NewReader(jar), int64(len(jar)), &out, instrumentAll, Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if stats.Transformed != 1 || stats.Copied != 2 {
		t.Errorf("stats = %+v", stats)
	}

	in, got := rawEntries(t, jar), rawEntries(t, out.Bytes())
	for _, name := range []string{"notes.txt", "data.txt"} {
		a, b := in[name], got[name]
		if b == nil {
			t.Fatalf("%s missing from output", name)
		}
		if a.Method != b.Method || a.CRC32 != b.CRC32 || a.CompressedSize64 != b.CompressedSize64 {
			t.Errorf("%s header: method %d/%d crc %08x/%08x size %d/%d", name,
				a.Method, b.Method, a.CRC32, b.CRC32, a.CompressedSize64, b.CompressedSize64)
		}
		if !bytes.Equal(rawBytes(t, a), rawBytes(t, b)) {
			t.Errorf("%s compressed bytes changed", name)
		}
	}
	if got["notes.txt"].Method != zip.Store {
		t.Errorf("notes.txt method = %d, want Store", got["notes.txt"].Method)
	}
}

func TestProcess_Filter(t *testing.T) {
	_, jar := testJar(t)
	stats, out := process(t, jar, instrumentAll, Options{
		Filter: func(name string) bool { return name == "a/B.class" },
	})
	if stats.Transformed != 1 || stats.Copied != 4 {
		t.Errorf("stats = %+v", stats)
	}
	for _, e := range out {
		if got, want := instrument.IsInstrumented(e.data, hook), e.name == "a/B.class"; got != want {
			t.Errorf("%s instrumented = %v, want %v", e.name, got, want)
		}
	}
}

func TestProcess_Drop(t *testing.T) {
	_, jar := testJar(t)
	stats, out := process(t, jar, func(name string, data []byte) ([]byte, error) {
		if name == "a/A.class" {
			return nil, nil
		}
		return data, nil
	}, Options{})
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
	want := []string{"META-INF/MANIFEST.MF", "a/B.class", "README.txt", "a/I.class"}
	if diff := cmp.Diff(want, names(out)); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_Failures(t *testing.T) {
	in, jar := testJar(t)
	fail := func(name string, data []byte) ([]byte, error) {
		if name == "a/B.class" {
			return nil, cerrors.InvalidInput(cerrors.PhaseTransform, nil, "rejected")
		}
		return data, nil
	}

	var out bytes.Buffer
	_, err := Process(context.Background(), bytes.NewReader(jar), int64(len(jar)), &out, fail, Options{})
	if !errors.Is(err, cerrors.ErrInvalidInput) {
		t.Fatalf("Process error = %v, want invalid input", err)
	}

	stats, entries := process(t, jar, fail, Options{KeepGoing: true})
	if stats.Failed != 1 || stats.Transformed != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if !bytes.Equal(entries[2].data, in[2].data) {
		t.Error("failed class was not copied unchanged")
	}
}

func TestProcess_Canceled(t *testing.T) {
	_, jar := testJar(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	_, err := Process(ctx, bytes.NewReader(jar), int64(len(jar)), &out, instrumentAll, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Process error = %v, want context.Canceled", err)
	}
}

func TestProcess_BadArchive(t *testing.T) {
	data := []byte("not a zip")
	var out bytes.Buffer
	_, err := Process(context.Background(), bytes.NewReader(data), int64(len(data)), &out, instrumentAll, Options{})
	if !errors.Is(err, cerrors.ErrMalformedInput) {
		t.Errorf("Process error = %v, want malformed input", err)
	}
}

func TestProcessFile(t *testing.T) {
	_, jar := testJar(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jar")
	out := filepath.Join(dir, "out.jar")
	if err := os.WriteFile(in, jar, 0o644); err != nil {
		t.Fatal(err)
	}
	stats, err := ProcessFile(context.Background(), in, out, instrumentAll, Options{})
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if stats.Transformed != 3 {
		t.Errorf("Transformed = %d, want 3", stats.Transformed)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(readJar(t, data)); got != 5 {
		t.Errorf("output has %d entries, want 5", got)
	}

	if _, err := ProcessFile(context.Background(), filepath.Join(dir, "missing.jar"), out, instrumentAll, Options{}); !errors.Is(err, cerrors.ErrNotFound) {
		t.Errorf("missing input error = %v, want not found", err)
	}
}

func TestBuildHierarchy(t *testing.T) {
	_, jar := testJar(t)
	h, err := BuildHierarchy(bytes.NewReader(jar), int64(len(jar)))
	if err != nil {
		t.Fatalf("BuildHierarchy: %v", err)
	}
	want := classfile.MapHierarchy{
		"a/A": {Super: "java/lang/Object"},
		"a/B": {Super: "a/A"},
		"a/I": {Super: "java/lang/Object", Interface: true},
	}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("hierarchy mismatch (-want +got):\n%s", diff)
	}
}

func TestIsClass(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a/A.class", true},
		{"module-info.class", true},
		{"a/A.java", false},
		{"weird.class/", false},
	}
	for _, tt := range tests {
		if got := IsClass(tt.name); got != tt.want {
			t.Errorf("IsClass(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
