package trace

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wippyai/classkit/errors"
)

// File is a stored trace of one class.
type File struct {
	Class  string  `cbor:"1,keyasint"`
	Events []Event `cbor:"2,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal encodes f as canonical CBOR. Equal traces encode to equal bytes.
func Marshal(f *File) ([]byte, error) {
	return encMode.Marshal(f)
}

// Unmarshal decodes a trace written by Marshal.
func Unmarshal(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindMalformedInput, err, "trace")
	}
	return &f, nil
}

// Diff returns a human readable difference between two event lists, or ""
// when they are equal. Nil and empty argument lists compare equal.
func Diff(want, got []Event) string {
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}

// ClassName returns the class name from the Visit event of events.
func ClassName(events []Event) string {
	for _, e := range events {
		if e.Op == "Visit" && len(e.Args) > 2 {
			return e.Args[2]
		}
	}
	return ""
}
