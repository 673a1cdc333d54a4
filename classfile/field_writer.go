package classfile

import (
	bin "github.com/wippyai/classkit/classfile/internal/binary"
	"github.com/wippyai/classkit/errors"
)

// FieldWriter encodes one field. It is returned by ClassWriter.VisitField.
type FieldWriter struct {
	cw          *ClassWriter
	access      int
	name        string
	desc        string
	signature   string
	value       any
	annotations annotationSet
	attrs       []Attribute
}

func (f *FieldWriter) fail(err error) {
	f.cw.fail(errors.WithPath(err, f.cw.name, f.name))
}

func (f *FieldWriter) VisitAnnotation(desc string, visible bool) AnnotationVisitor {
	return f.annotations.add(f.cw.symbols, desc, visible, f.fail)
}

func (f *FieldWriter) VisitAttribute(attr Attribute) {
	f.attrs = append(f.attrs, attr)
}

func (f *FieldWriter) VisitEnd() {}

// constantValue converts v to the constant type the descriptor requires.
func constantValue(desc string, v any) any {
	switch desc {
	case "J":
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		}
	case "F":
		switch n := v.(type) {
		case float64:
			return float32(n)
		case int:
			return float32(n)
		}
	case "D":
		switch n := v.(type) {
		case float32:
			return float64(n)
		case int:
			return float64(n)
		}
	}
	return v
}

func (f *FieldWriter) write(w *bin.Writer) {
	symbols := f.cw.symbols
	var ferr error
	attrs := newAttrList(symbols, func(err error) {
		if ferr == nil {
			ferr = err
		}
	})
	if f.value != nil {
		idx, err := symbols.AddConstant(constantValue(f.desc, f.value))
		if err != nil {
			f.fail(err)
			return
		}
		attrs.addU2("ConstantValue", idx)
	}
	if f.signature != "" {
		idx, err := symbols.AddUTF8(f.signature)
		if err != nil {
			f.fail(err)
			return
		}
		attrs.addU2("Signature", idx)
	}
	access := commonFlags(attrs, f.cw.version, f.access)
	f.annotations.write(attrs)
	attrs.addRaw(f.attrs)

	name, err := symbols.AddUTF8(f.name)
	if err != nil {
		f.fail(err)
		return
	}
	desc, err := symbols.AddUTF8(f.desc)
	if err != nil {
		f.fail(err)
		return
	}
	if ferr != nil {
		f.fail(ferr)
		return
	}
	w.U2(uint16(access))
	w.U2(name)
	w.U2(desc)
	attrs.writeTo(w)
}
