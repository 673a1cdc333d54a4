// Package archive applies class transformations to every class in a JAR.
//
// Entries keep their order and metadata. Class entries selected by the
// filter are passed to the transform function on a bounded pool of
// workers; everything else is copied through unchanged.
//
//	err := archive.ProcessFile(ctx, "in.jar", "out.jar",
//	    func(name string, data []byte) ([]byte, error) {
//	        return instrument.Transform(data, cfg)
//	    },
//	    archive.Options{Workers: 8})
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/classkit/classfile"
	"github.com/wippyai/classkit/errors"
)

// ClassSuffix marks class entries.
const ClassSuffix = ".class"

// Func transforms one class. name is the entry name. Returning nil data
// drops the entry from the output.
type Func func(name string, data []byte) ([]byte, error)

// Options configures Process.
type Options struct {
	// Workers bounds the number of classes transformed at once.
	// Zero uses GOMAXPROCS.
	Workers int
	// Filter selects class entries to transform. Nil selects every class.
	Filter func(name string) bool
	// KeepGoing copies classes whose transform failed instead of
	// aborting. Failures are counted in Stats.
	KeepGoing bool
}

func (o *Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o *Options) selected(name string) bool {
	if !IsClass(name) {
		return false
	}
	return o.Filter == nil || o.Filter(name)
}

// Stats summarizes one Process call.
type Stats struct {
	Entries     int
	Transformed int
	Copied      int
	Dropped     int
	Failed      int
}

// IsClass reports whether an entry name is a class file.
func IsClass(name string) bool {
	return strings.HasSuffix(name, ClassSuffix) && !strings.HasSuffix(name, "/")
}

// ProcessFile reads the JAR at in and writes the result to out.
func ProcessFile(ctx context.Context, in, out string, fn Func, opts Options) (*Stats, error) {
	f, err := os.Open(in)
	if err != nil {
		kind := errors.KindInvalidInput
		if os.IsNotExist(err) {
			kind = errors.KindNotFound
		}
		return nil, errors.Wrap(errors.PhaseArchive, kind, err, in)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, err, in)
	}

	var buf bytes.Buffer
	stats, err := Process(ctx, f, fi.Size(), &buf, fn, opts)
	if err != nil {
		return nil, errors.WithPath(err, in)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, err, out)
	}
	return stats, nil
}

type result struct {
	data    []byte
	changed bool
	failed  bool
}

// Process transforms the JAR read from r and writes the new archive to w.
func Process(ctx context.Context, r io.ReaderAt, size int64, w io.Writer, fn Func, opts Options) (*Stats, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindMalformedInput, err, "open archive")
	}

	results := make([]result, len(zr.File))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, f := range zr.File {
		i, f := i, f
		if !opts.selected(f.Name) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := readEntry(f)
			if err != nil {
				return err
			}
			out, err := fn(f.Name, data)
			if err != nil {
				if !opts.KeepGoing {
					return errors.WithPath(err, f.Name)
				}
				Logger().Warn("transform failed, copying entry",
					zap.String("entry", f.Name), zap.Error(err))
				results[i] = result{failed: true}
				return nil
			}
			results[i] = result{data: out, changed: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &Stats{Entries: len(zr.File)}
	zw := zip.NewWriter(w)
	if c := zr.Comment; c != "" {
		if err := zw.SetComment(c); err != nil {
			return nil, errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, err, "archive comment")
		}
	}
	for i, f := range zr.File {
		res := results[i]
		switch {
		case res.changed && res.data == nil:
			stats.Dropped++
			Logger().Debug("dropped entry", zap.String("entry", f.Name))
			continue
		case res.changed:
			stats.Transformed++
			err = writeEntry(zw, f, res.data)
		default:
			if res.failed {
				stats.Failed++
			} else {
				stats.Copied++
			}
			// unchanged entries keep their compressed bytes
			err = zw.Copy(f)
		}
		if err != nil {
			return nil, errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, err, fmt.Sprintf("write %s", f.Name))
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindInvalidInput, err, "close archive")
	}
	Logger().Info("processed archive",
		zap.Int("entries", stats.Entries),
		zap.Int("transformed", stats.Transformed),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindMalformedInput, err, f.Name)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindMalformedInput, err, f.Name)
	}
	return data, nil
}

// writeEntry writes data under a copy of f's header. Sizes and CRC are
// recomputed by the writer.
func writeEntry(zw *zip.Writer, f *zip.File, data []byte) error {
	fh := f.FileHeader
	fh.CRC32, fh.CompressedSize64, fh.UncompressedSize64 = 0, 0, 0
	fh.CompressedSize, fh.UncompressedSize = 0, 0
	if fh.Method != zip.Store {
		fh.Method = zip.Deflate
	}
	ew, err := zw.CreateHeader(&fh)
	if err != nil {
		return err
	}
	_, err = ew.Write(data)
	return err
}

// Classes returns the class entries of a JAR, keyed by entry name.
func Classes(r io.ReaderAt, size int64) (map[string][]byte, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArchive, errors.KindMalformedInput, err, "open archive")
	}
	out := make(map[string][]byte)
	for _, f := range zr.File {
		if !IsClass(f.Name) {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		out[f.Name] = data
	}
	return out, nil
}

// BuildHierarchy reads the header of every class in a JAR into a
// MapHierarchy, for use as WriterOptions.Hierarchy. Entries that are not
// valid classes are skipped.
func BuildHierarchy(r io.ReaderAt, size int64) (classfile.MapHierarchy, error) {
	classes, err := Classes(r, size)
	if err != nil {
		return nil, err
	}
	h := make(classfile.MapHierarchy, len(classes))
	for name, data := range classes {
		cr, err := classfile.NewClassReader(data)
		if err != nil {
			Logger().Debug("skipping unreadable class", zap.String("entry", name), zap.Error(err))
			continue
		}
		h.Add(cr.ClassName(), cr.SuperName(), cr.Access()&classfile.AccInterface != 0)
	}
	return h, nil
}
