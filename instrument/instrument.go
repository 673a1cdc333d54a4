// Package instrument inserts a call to a static hook at the entry of
// selected methods.
//
// The hook is a static method taking one String. Each instrumented method
// starts with
//
//	ldc "owner.name+desc"
//	invokestatic HookOwner.HookName (Ljava/lang/String;)V
//
// so the hook learns which method was entered. Abstract and native methods
// have no code and are left alone, as is the hook itself.
//
// # Usage
//
//	out, err := instrument.Transform(data, instrument.Config{
//	    Methods:   []string{"com/acme/*"},
//	    HookOwner: "com/acme/Trace",
//	    HookName:  "enter",
//	})
//
// Transform is idempotent: a class that already calls the hook is
// returned unchanged.
package instrument

import (
	"go.uber.org/zap"

	"github.com/wippyai/classkit/classfile"
	"github.com/wippyai/classkit/errors"
)

// HookDesc is the descriptor the hook method must have.
const HookDesc = "(Ljava/lang/String;)V"

// Config configures the instrumentation.
type Config struct {
	// Matcher selects methods to instrument.
	Matcher MethodMatcher
	// Methods are wildcard patterns selecting methods in addition to Matcher.
	Methods []string
	// Exclude removes methods that Matcher or Methods selected.
	Exclude MethodMatcher
	// HookOwner and HookName name the static hook method.
	HookOwner string
	HookName  string
	// HookInterface is set when HookOwner is an interface.
	HookInterface bool
	// SkipConstructors leaves <init> and <clinit> untouched.
	SkipConstructors bool
	// Writer configures the output writer. ComputeMaxs is always enabled.
	Writer classfile.WriterOptions
}

func (c *Config) validate() error {
	if c.HookOwner == "" || c.HookName == "" {
		return errors.InvalidInput(errors.PhaseTransform, nil, "hook owner and name are required")
	}
	return nil
}

// matcher combines Matcher and Methods.
func (c *Config) matcher() MethodMatcher {
	if len(c.Methods) == 0 {
		return c.Matcher
	}
	if c.Matcher == nil {
		return NewWildcardMatcher(c.Methods)
	}
	return NewCompositeMatcher(c.Matcher, NewWildcardMatcher(c.Methods))
}

// Transform instruments the methods of one class selected by cfg.
// Classes with no selected methods are returned unchanged.
func Transform(data []byte, cfg Config) ([]byte, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cr, err := classfile.NewClassReader(data)
	if err != nil {
		return nil, err
	}
	if instrumented(cr, &cfg) {
		return data, nil
	}

	opts := cfg.Writer
	opts.ComputeMaxs = true
	cw := classfile.NewClassWriterFrom(cr, opts)
	ca := &classAdapter{
		ClassAdapter: classfile.ClassAdapter{Next: cw},
		cfg:          &cfg,
		matcher:      cfg.matcher(),
	}
	if err := cr.Accept(ca, classfile.ReadOptions{}); err != nil {
		return nil, err
	}
	if len(ca.methods) == 0 {
		return data, nil
	}
	out, err := cw.Finish()
	if err != nil {
		return nil, err
	}
	Logger().Debug("instrumented class",
		zap.String("class", cr.ClassName()),
		zap.Strings("methods", ca.methods))
	return out, nil
}

// IsInstrumented reports whether any method of the class calls the hook
// named by cfg. Unreadable classes report false.
func IsInstrumented(data []byte, cfg Config) bool {
	cr, err := classfile.NewClassReader(data)
	if err != nil {
		return false
	}
	return instrumented(cr, &cfg)
}

func instrumented(cr *classfile.ClassReader, cfg *Config) bool {
	f := &hookFinder{cfg: cfg}
	if err := cr.Accept(f, classfile.ReadOptions{SkipDebug: true, SkipFrames: true}); err != nil {
		return false
	}
	return f.found
}

type classAdapter struct {
	classfile.ClassAdapter
	cfg     *Config
	matcher MethodMatcher
	owner   string
	methods []string
}

func (a *classAdapter) Visit(version, access int, name, signature, superName string, interfaces []string) {
	a.owner = name
	a.ClassAdapter.Visit(version, access, name, signature, superName, interfaces)
}

func (a *classAdapter) selected(access int, name string) bool {
	if access&(classfile.AccAbstract|classfile.AccNative) != 0 {
		return false
	}
	if a.owner == a.cfg.HookOwner && name == a.cfg.HookName {
		return false
	}
	if a.cfg.SkipConstructors && (name == "<init>" || name == "<clinit>") {
		return false
	}
	if a.matcher == nil || !a.matcher.Match(a.owner, name) {
		return false
	}
	return a.cfg.Exclude == nil || !a.cfg.Exclude.Match(a.owner, name)
}

func (a *classAdapter) VisitMethod(access int, name, desc, signature string, exceptions []string) classfile.MethodVisitor {
	mv := a.ClassAdapter.VisitMethod(access, name, desc, signature, exceptions)
	if mv == nil || !a.selected(access, name) {
		return mv
	}
	a.methods = append(a.methods, name+desc)
	return &entryHook{
		MethodAdapter: classfile.MethodAdapter{Next: mv},
		cfg:           a.cfg,
		id:            a.owner + "." + name + desc,
	}
}

// entryHook emits the hook call right after VisitCode.
type entryHook struct {
	classfile.MethodAdapter
	cfg *Config
	id  string
}

func (h *entryHook) VisitCode() {
	h.MethodAdapter.VisitCode()
	h.MethodAdapter.VisitLdcInsn(h.id)
	h.MethodAdapter.VisitMethodInsn(classfile.OpInvokestatic, h.cfg.HookOwner, h.cfg.HookName, HookDesc, h.cfg.HookInterface)
}

// hookFinder looks for a call to the hook in any method.
type hookFinder struct {
	classfile.ClassAdapter
	cfg   *Config
	found bool
}

func (f *hookFinder) VisitMethod(access int, name, desc, signature string, exceptions []string) classfile.MethodVisitor {
	if f.found {
		return nil
	}
	return &callFinder{f: f}
}

type callFinder struct {
	classfile.MethodAdapter
	f *hookFinder
}

func (c *callFinder) VisitMethodInsn(op int, owner, name, desc string, isInterface bool) {
	cfg := c.f.cfg
	if op == classfile.OpInvokestatic && owner == cfg.HookOwner && name == cfg.HookName && desc == HookDesc {
		c.f.found = true
	}
}
