package errors

import (
	"errors"
	"fmt"
	"strings"
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
				Phase:    PhasePickle,
				Kind:     KindTypeMismatch,
				Path:     []string{"user", "address", "zip"},
				Expected: "int",
				Actual:   "string",
				Detail:   "cannot convert",
			},
			contains: []string{"[pickle]", "type_mismatch", "user.address.zip", "expected int", "got string", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseUnpickle,
				Kind:  KindProtocol,
			},
			contains: []string{"[unpickle]", "protocol_violation"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhasePickle,
				Kind:   KindEvaluation,
				Detail: "get property",
				Cause:  errors.New("getter threw"),
			},
			contains: []string{"[pickle]", "evaluation", "get property", "caused by", "getter threw"},
		},
		{
			name: "index path",
			err: &Error{
				Phase: PhasePickle,
				Kind:  KindTypeMismatch,
				Path:  []string{"items", "[5]", "name"},
			},
			contains: []string{"items[5].name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseUnpickle,
		Kind:  KindEvaluation,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhasePickle,
		Kind:  KindTypeMismatch,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhasePickle, Kind: KindTypeMismatch}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseUnpickle, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhasePickle, Kind: KindProtocol}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhasePickle, Kind: KindTypeMismatch}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), target) {
		t.Error("errors.Is should match through wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhasePickle, KindTypeMismatch).
		Path("user", "name").
		Expected("string").
		Actual("int").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "string", "int").
		Build()

	if err.Phase != PhasePickle {
		t.Errorf("Phase = %v, want %v", err.Phase, PhasePickle)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "user" || err.Path[1] != "name" {
		t.Errorf("Path = %v, want [user name]", err.Path)
	}
	if err.Expected != "string" {
		t.Errorf("Expected = %v, want 'string'", err.Expected)
	}
	if err.Actual != "int" {
		t.Errorf("Actual = %v, want 'int'", err.Actual)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected string, got int" {
		t.Errorf("Detail = %v, want 'expected string, got int'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(PhasePickle, []string{"field"}, "int", "string")
		if err.Kind != KindTypeMismatch {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
		}
		if err.Expected != "int" || err.Actual != "string" {
			t.Errorf("Expected=%v Actual=%v", err.Expected, err.Actual)
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseWire, 1024, 512)
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !strings.Contains(err.Detail, "1024") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
	})

	t.Run("Protocol", func(t *testing.T) {
		err := Protocol(PhaseUnpickle, nil, "%d trailing bytes", 3)
		if err.Kind != KindProtocol {
			t.Errorf("Kind = %v, want %v", err.Kind, KindProtocol)
		}
		if err.Detail != "3 trailing bytes" {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("Evaluation", func(t *testing.T) {
		cause := errors.New("boom")
		err := Evaluation(PhasePickle, []string{"x"}, "get property", cause)
		if err.Kind != KindEvaluation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindEvaluation)
		}
		if !errors.Is(err, cause) {
			t.Error("Evaluation should wrap its cause")
		}
	})

	t.Run("DepthExceeded", func(t *testing.T) {
		err := DepthExceeded(PhaseUnpickle, nil, 8)
		if err.Kind != KindDepthExceeded {
			t.Errorf("Kind = %v, want %v", err.Kind, KindDepthExceeded)
		}
		if err.Value != 8 {
			t.Errorf("Value = %v, want 8", err.Value)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseCompile, "resource types")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseGuest, nil, 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		err := Closed(PhaseRegistry, "registry")
		if err.Kind != KindClosed {
			t.Errorf("Kind = %v, want %v", err.Kind, KindClosed)
		}
	})
}

func TestKindOf(t *testing.T) {
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q", got)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q", got)
	}
	err := fmt.Errorf("outer: %w", Protocol(PhaseWire, nil, "short read"))
	if got := KindOf(err); got != KindProtocol {
		t.Errorf("KindOf = %q, want %q", got, KindProtocol)
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"a"}, "a"},
		{[]string{"a", "b"}, "a.b"},
		{[]string{"[0]", "b"}, "[0].b"},
		{[]string{"list", "[2]", "[3]"}, "list[2][3]"},
	}
	for _, tt := range tests {
		if got := JoinPath(tt.path); got != tt.want {
			t.Errorf("JoinPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
