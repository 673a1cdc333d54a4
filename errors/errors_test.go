package errors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseResolve,
				Kind:   KindMethodTooLarge,
				Path:   []string{"com/acme/Foo", "run()V"},
				Offset: 70000,
				Detail: "code too long",
			},
			contains: []string{"[resolve]", "method_too_large", "com/acme/Foo.run()V", "offset 70000", "code too long"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindMalformedInput,
				Offset: -1,
			},
			contains: []string{"[decode]", "malformed_input"},
		},
		{
			name: "offset zero",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindMalformedInput,
				Offset: 0,
				Detail: "bad magic",
			},
			contains: []string{"(offset 0)", "bad magic"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInvalidInput,
				Detail: "read failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "invalid_input", "read failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !containsSubstring(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindInvalidInput,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should follow the cause chain")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseDecode,
		Kind:  KindMalformedInput,
		Path:  []string{"Foo"},
	}

	if !err.Is(&Error{Phase: PhaseDecode, Kind: KindMalformedInput}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseEncode, Kind: KindMalformedInput}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindUnsupported}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrMalformedInput) {
		t.Error("errors.Is should match the kind sentinel")
	}
	if errors.Is(err, ErrUnsupportedVersion) {
		t.Error("errors.Is should not match another sentinel")
	}
	if !errors.Is(UnsupportedVersion(70, 0), ErrMalformedInput) {
		t.Error("unsupported version should match ErrMalformedInput")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseDecode, KindMalformedInput).
		Path("Foo", "bar()V").
		Offset(12).
		Value(0xff).
		Cause(cause).
		Detail("invalid opcode 0x%02x", 0xff).
		Build()

	if err.Phase != PhaseDecode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseDecode)
	}
	if err.Kind != KindMalformedInput {
		t.Errorf("Kind = %v, want %v", err.Kind, KindMalformedInput)
	}
	if len(err.Path) != 2 || err.Path[0] != "Foo" || err.Path[1] != "bar()V" {
		t.Errorf("Path = %v, want [Foo bar()V]", err.Path)
	}
	if err.Offset != 12 {
		t.Errorf("Offset = %d, want 12", err.Offset)
	}
	if err.Value != 0xff {
		t.Errorf("Value = %v, want 255", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "invalid opcode 0xff" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestError_OffsetRendering(t *testing.T) {
	if msg := New(PhaseDecode, KindMalformedInput).Build().Error(); containsSubstring(msg, "offset") {
		t.Errorf("unknown offset rendered: %q", msg)
	}
	if msg := Malformed(PhaseDecode, 0, "bad magic").Error(); !containsSubstring(msg, "(offset 0)") {
		t.Errorf("offset 0 hidden: %q", msg)
	}
	if msg := ErrMalformedInput.Error(); containsSubstring(msg, "offset") {
		t.Errorf("sentinel rendered an offset: %q", msg)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Malformed", func(t *testing.T) {
		err := Malformed(PhaseDecode, 10, "bad tag %d", 99)
		if err.Kind != KindMalformedInput || err.Offset != 10 {
			t.Errorf("got %+v", err)
		}
		if !containsSubstring(err.Detail, "99") {
			t.Errorf("Detail = %q, should contain tag", err.Detail)
		}
	})

	t.Run("UnsupportedVersion", func(t *testing.T) {
		err := UnsupportedVersion(70, 0)
		if !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("Kind = %v", err.Kind)
		}
		if !containsSubstring(err.Error(), "70.0") {
			t.Errorf("message %q should contain version", err.Error())
		}
	})

	t.Run("MethodTooLarge", func(t *testing.T) {
		err := MethodTooLarge("Foo", "big", "()V", 70003)
		if !errors.Is(err, ErrMethodTooLarge) {
			t.Errorf("Kind = %v", err.Kind)
		}
		if !containsSubstring(err.Error(), "Foo.big()V") {
			t.Errorf("message %q should identify the member", err.Error())
		}
	})

	t.Run("ClassTooLarge", func(t *testing.T) {
		err := ClassTooLarge("Foo", "fields", 70000)
		if !errors.Is(err, ErrClassTooLarge) {
			t.Errorf("Kind = %v", err.Kind)
		}
	})

	t.Run("CapacityExceeded", func(t *testing.T) {
		err := CapacityExceeded(PhaseSymbols, nil, "constant pool entries", 65535)
		if !errors.Is(err, ErrCapacityExceeded) {
			t.Errorf("Kind = %v", err.Kind)
		}
		if err.Value != 65535 {
			t.Errorf("Value = %v", err.Value)
		}
	})

	t.Run("UnresolvedLabel", func(t *testing.T) {
		err := UnresolvedLabel([]string{"Foo", "m()V"}, "label never placed")
		if err.Phase != PhaseResolve || !errors.Is(err, ErrUnresolvedLabel) {
			t.Errorf("got %+v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseConfig, "config file", "classkit.toml")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Kind = %v", err.Kind)
		}
	})
}

func TestWithPath(t *testing.T) {
	err := WithPath(Malformed(PhaseDecode, 3, "x"), "Foo", "m()V")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error")
	}
	if len(e.Path) != 2 {
		t.Errorf("Path = %v", e.Path)
	}

	plain := errors.New("plain")
	if WithPath(plain, "Foo") != plain {
		t.Error("non-structured errors should pass through")
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
