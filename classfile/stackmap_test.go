package classfile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStackMapWriter_Add(t *testing.T) {
	tests := []struct {
		name    string
		initial []vtype
		frames  []frameRecord
		want    []byte
	}{
		{
			name:    "same",
			initial: []vtype{tInt},
			frames: []frameRecord{
				{off: 5, locals: []vtype{tInt}, stack: []vtype{}},
				{off: 80, locals: []vtype{tInt}, stack: []vtype{}},
			},
			want: []byte{0x05, 0xfb, 0x00, 0x4a},
		},
		{
			name:    "same locals one stack item",
			initial: []vtype{},
			frames: []frameRecord{
				{off: 3, locals: []vtype{}, stack: []vtype{tFloat}},
				{off: 100, locals: []vtype{}, stack: []vtype{tInt}},
			},
			want: []byte{0x43, 0x02, 0xf7, 0x00, 0x60, 0x01},
		},
		{
			name:    "append and chop",
			initial: []vtype{tInt},
			frames: []frameRecord{
				{off: 2, locals: []vtype{tInt, tFloat, tLong}, stack: []vtype{}},
				{off: 10, locals: []vtype{}, stack: []vtype{}},
				{off: 11, locals: []vtype{tInt}, stack: []vtype{}},
				{off: 20, locals: []vtype{}, stack: []vtype{}},
			},
			want: []byte{
				0xfd, 0x00, 0x02, 0x02, 0x04,
				0xf8, 0x00, 0x07,
				0xfc, 0x00, 0x00, 0x01,
				0xfa, 0x00, 0x08,
			},
		},
		{
			name:    "retyped local needs full frame",
			initial: []vtype{tInt},
			frames: []frameRecord{
				{off: 4, locals: []vtype{tFloat}, stack: []vtype{}},
			},
			want: []byte{0xff, 0x00, 0x04, 0x00, 0x01, 0x02, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newStackMapWriter(NewSymbolTable(), tt.initial)
			for _, f := range tt.frames {
				if err := m.add(f); err != nil {
					t.Fatalf("add %d: %v", f.off, err)
				}
			}
			if diff := cmp.Diff(tt.want, m.w.Bytes()); diff != "" {
				t.Errorf("encoding (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStackMapWriter_AddRaw(t *testing.T) {
	m := newStackMapWriter(NewSymbolTable(), []vtype{tInt, tFloat})
	if err := m.addRaw(FChop, 3, nil, nil, 2); err != nil {
		t.Fatal(err)
	}
	if err := m.addRaw(FAppend, 4, []vtype{tDouble}, nil, 0); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xf9, 0x00, 0x03, 0xfc, 0x00, 0x00, 0x03}
	if diff := cmp.Diff(want, m.w.Bytes()); diff != "" {
		t.Errorf("encoding (-want +got):\n%s", diff)
	}

	if err := m.addRaw(FChop, 5, nil, nil, 4); err == nil {
		t.Error("chop of 4 locals accepted")
	}
}
