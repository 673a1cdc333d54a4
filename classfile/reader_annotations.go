package classfile

import "github.com/wippyai/classkit/errors"

// annotations decodes a RuntimeVisibleAnnotations or
// RuntimeInvisibleAnnotations attribute.
func (d *decoder) annotations(a *rawAttr, visible bool, visit func(desc string, visible bool) AnnotationVisitor) {
	if a == nil || d.err != nil {
		return
	}
	in := d.input(*a)
	n := in.u2()
	for i := 0; i < n && d.err == nil; i++ {
		desc := d.utf8(in.u2())
		if d.err != nil {
			return
		}
		d.annotation(in, visit(desc, visible))
	}
}

func (d *decoder) parameterAnnotations(a *rawAttr, visible bool, mv MethodVisitor) {
	if a == nil || d.err != nil {
		return
	}
	in := d.input(*a)
	params := in.u1()
	for p := 0; p < params && d.err == nil; p++ {
		n := in.u2()
		for i := 0; i < n && d.err == nil; i++ {
			desc := d.utf8(in.u2())
			if d.err != nil {
				return
			}
			d.annotation(in, mv.VisitParameterAnnotation(p, desc, visible))
		}
	}
}

// annotation decodes element_value_pairs into av. A nil av consumes the
// input without events.
func (d *decoder) annotation(in *input, av AnnotationVisitor) {
	n := in.u2()
	for i := 0; i < n && d.err == nil; i++ {
		name := d.utf8(in.u2())
		d.elementValue(in, av, name)
	}
	if av != nil && d.err == nil {
		av.VisitEnd()
	}
}

func (d *decoder) elementValue(in *input, av AnnotationVisitor, name string) {
	start := in.pos()
	tag := in.u1()
	if d.err != nil {
		return
	}
	switch tag {
	case 'B', 'C', 'I', 'S', 'Z', 'J', 'F', 'D':
		c, err := d.cr.symbols.Constant(uint16(in.u2()))
		if !d.lookup(err, "annotation constant") {
			return
		}
		if n, ok := c.(int32); ok {
			switch tag {
			case 'B':
				c = int8(n)
			case 'C':
				c = uint16(n)
			case 'S':
				c = int16(n)
			case 'Z':
				c = n != 0
			}
		}
		if av != nil {
			av.Visit(name, c)
		}
	case 's':
		s := d.utf8(in.u2())
		if av != nil && d.err == nil {
			av.Visit(name, s)
		}
	case 'c':
		s := d.utf8(in.u2())
		if av != nil && d.err == nil {
			av.Visit(name, ClassConst(s))
		}
	case 'e':
		desc := d.utf8(in.u2())
		value := d.utf8(in.u2())
		if av != nil && d.err == nil {
			av.VisitEnum(name, desc, value)
		}
	case '@':
		desc := d.utf8(in.u2())
		if d.err != nil {
			return
		}
		var nested AnnotationVisitor
		if av != nil {
			nested = av.VisitAnnotation(name, desc)
		}
		d.annotation(in, nested)
	case '[':
		n := in.u2()
		var arr AnnotationVisitor
		if av != nil && d.err == nil {
			arr = av.VisitArray(name)
		}
		for i := 0; i < n && d.err == nil; i++ {
			d.elementValue(in, arr, "")
		}
		if arr != nil && d.err == nil {
			arr.VisitEnd()
		}
	default:
		d.fail(errors.Malformed(errors.PhaseDecode, start, "invalid element value tag %q", rune(tag)))
	}
}
