// Package classkit is a Go toolkit for reading, writing and transforming JVM
// class files.
//
// The library is organized into several packages with distinct responsibilities:
//
//	classkit/
//	├── classfile/       Class file codec: symbol table, reader, writer,
//	│                    jump resolution and stack map frame computation
//	├── trace/           Event recorder, text listing, CBOR trace files
//	├── instrument/      Method entry hook insertion driven by name matchers
//	├── synth/           Synthetic class builder for tests and tooling
//	├── archive/         Concurrent per-class processing of JAR files
//	├── config/          classkit.toml loading for the CLI
//	├── errors/          Structured error types for debugging
//	└── cmd/classkit/    Command line tool and interactive browser
//
// # Quick Start
//
// Read a class, rename a method and write it back:
//
//	cr, err := classfile.NewClassReader(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cw := classfile.NewClassWriterFrom(cr, classfile.WriterOptions{})
//	if err := cr.Accept(&renamer{ClassAdapter: classfile.ClassAdapter{Next: cw}}, classfile.ReadOptions{}); err != nil {
//	    log.Fatal(err)
//	}
//	out, err := cw.Finish()
//
// Generate a class from scratch with computed frames:
//
//	cw := classfile.NewClassWriter(classfile.WriterOptions{ComputeFrames: true})
//	cw.Visit(classfile.V17, classfile.AccPublic|classfile.AccSuper, "a/Hello", "", "java/lang/Object", nil)
//	...
//	out, err := cw.Finish()
//
// # Version Support
//
// Class files from version 45.0 (Java 1.1) through 69.0 (Java 25) are read
// and written. Newer versions are rejected before any event is reported.
//
// # Thread Safety
//
// A ClassReader is immutable after NewClassReader and may be shared between
// goroutines; each Accept call keeps its own state. ClassWriter and
// SymbolTable are not safe for concurrent use. The archive package runs one
// reader and writer pair per class in parallel.
package classkit
