package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/classkit/classfile"
	cerrors "github.com/wippyai/classkit/errors"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `
[read]
skip-debug = true
expand-frames = true

[write]
compute-maxs = true
compute-frames = false
dead-code = "omit"

[instrument]
methods = ["com/acme/*"]
exclude = ["toString"]
hook-owner = "com/acme/Trace"
hook-name = "enter"
skip-constructors = true

[archive]
workers = 4
include = ["com/acme/"]
exclude = ["com/acme/gen/"]
keep-going = true
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ro := c.ReadOptions()
	if !ro.SkipDebug || !ro.ExpandFrames || ro.SkipCode || ro.SkipFrames {
		t.Errorf("read options = %+v", ro)
	}
	wo := c.WriterOptions()
	if !wo.ComputeMaxs || wo.ComputeFrames || wo.DeadCode != classfile.DeadCodeOmit {
		t.Errorf("writer options = %+v", wo)
	}

	ic := c.InstrumentConfig()
	if ic.HookOwner != "com/acme/Trace" || ic.HookName != "enter" || !ic.SkipConstructors {
		t.Errorf("instrument config = %+v", ic)
	}
	if len(ic.Methods) != 1 || ic.Methods[0] != "com/acme/*" {
		t.Errorf("methods = %v", ic.Methods)
	}
	if ic.Exclude == nil || !ic.Exclude.Match("com/acme/A", "toString") {
		t.Error("exclude should match toString")
	}
	if ic.Writer.DeadCode != classfile.DeadCodeOmit {
		t.Error("instrument writer should inherit [write]")
	}

	ao := c.ArchiveOptions()
	if ao.Workers != 4 || !ao.KeepGoing {
		t.Errorf("archive options = %+v", ao)
	}
	filter := []struct {
		name string
		want bool
	}{
		{"com/acme/A.class", true},
		{"com/acme/gen/B.class", false},
		{"org/other/C.class", false},
	}
	for _, tt := range filter {
		if got := ao.Filter(tt.name); got != tt.want {
			t.Errorf("Filter(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	abs, _ := filepath.Abs(dir)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
}

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("[read]\nskip-code = true\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	wo := c.WriterOptions()
	if !wo.ComputeFrames || wo.DeadCode != classfile.DeadCodeMarker {
		t.Errorf("writer options = %+v, want default compute-frames with marker", wo)
	}
	if c.ArchiveOptions().Filter != nil {
		t.Error("no include or exclude should leave Filter nil")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[read\n"},
		{"unknown key", "[write]\ncompute-everything = true\n"},
		{"dead code policy", "[write]\ndead-code = \"drop\"\n"},
		{"negative workers", "[archive]\nworkers = -1\n"},
		{"hook owner only", "[instrument]\nhook-owner = \"a/T\"\n"},
		{"wrong type", "[archive]\nworkers = \"four\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.content)); !errors.Is(err, cerrors.ErrInvalidInput) {
				t.Errorf("Parse error = %v, want invalid input", err)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[archive]\nworkers = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c == nil || c.Archive.Workers != 2 {
		t.Fatalf("config = %+v", c)
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, cerrors.ErrNotFound) {
		t.Errorf("Load error = %v, want not found", err)
	}
}
