// Package classfile reads and writes JVM class files.
//
// The package is event based. A ClassReader parses a class and reports its
// structure to a ClassVisitor; a ClassWriter is a ClassVisitor that encodes
// the events it receives back into a class file. Adapters sit between the
// two to transform a class in one pass.
//
// # Reading
//
//	cr, err := classfile.NewClassReader(data)
//	if err != nil {
//	    return err
//	}
//	err = cr.Accept(visitor, classfile.ReadOptions{SkipDebug: true})
//
// Errors from NewClassReader and Accept are *errors.Error values from the
// classkit errors package. Malformed input never panics.
//
// # Writing
//
//	cw := classfile.NewClassWriter(classfile.WriterOptions{ComputeFrames: true})
//	cw.Visit(classfile.V17, classfile.AccPublic|classfile.AccSuper, "a/Hello", "", "java/lang/Object", nil)
//	mv := cw.VisitMethod(classfile.AccPublic|classfile.AccStatic, "main", "([Ljava/lang/String;)V", "", nil)
//	mv.VisitCode()
//	mv.VisitInsn(classfile.OpReturn)
//	mv.VisitMaxs(0, 0)
//	mv.VisitEnd()
//	cw.VisitEnd()
//	out, err := cw.Finish()
//
// Visitor methods do not return errors. The first failure is kept by the
// writer and reported by Finish.
//
// # Transforming
//
// Embed ClassAdapter or MethodAdapter and override the events to change:
//
//	type rename struct{ classfile.ClassAdapter }
//
//	func (r *rename) VisitMethod(access int, name, desc, sig string, exc []string) classfile.MethodVisitor {
//	    if name == "run" {
//	        name = "execute"
//	    }
//	    return r.ClassAdapter.VisitMethod(access, name, desc, sig, exc)
//	}
//
//	cr, _ := classfile.NewClassReader(data)
//	cw := classfile.NewClassWriterFrom(cr, classfile.WriterOptions{})
//	_ = cr.Accept(&rename{classfile.ClassAdapter{Next: cw}}, classfile.ReadOptions{})
//	out, err := cw.Finish()
//
// A writer created with NewClassWriterFrom starts from a copy of the
// reader's constant pool. Methods that reach it unchanged are copied as raw
// bytes without being decoded again.
//
// # Labels and Jumps
//
// Jump targets are Labels. Offsets are assigned when the method is
// finished; a conditional or goto whose target ends up more than 32767
// bytes away is rewritten to its 32-bit form. When that happens to a
// conditional jump any frames supplied by the caller are discarded and
// recomputed.
//
// # Frames
//
// With ComputeFrames the writer derives the StackMapTable by type flow
// analysis over the final bytecode. Merging two reference types needs the
// class hierarchy; supply it through WriterOptions.Hierarchy, for example
// with a MapHierarchy built from the classes being processed. Unknown
// classes merge to java/lang/Object.
//
// Unreachable code is replaced by nop ... athrow under DeadCodeMarker, or
// left alone without frames under DeadCodeOmit. Methods using jsr or ret
// cannot have computed frames; ComputeMaxs alone still works for them.
package classfile
