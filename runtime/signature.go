package runtime

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// Parameter kinds of a native symbol signature.
const (
	KindI32       byte = 'i'
	KindI64       byte = 'I'
	KindF32       byte = 'f'
	KindF64       byte = 'F'
	KindExternref byte = 'r'
	KindPointer   byte = '*' // guest address, i32
	KindLength    byte = '~' // byte length of the preceding pointer, i32
	KindString    byte = '$' // guest address of a NUL-terminated string, i32
)

// Signature is a parsed C signature string such as "(i*~)i".
type Signature struct {
	raw     string
	params  []byte
	results []byte
}

// ParseSignature parses a native symbol signature. An empty string
// denotes a function without parameters and results.
func ParseSignature(s string) (Signature, error) {
	if s == "" {
		return Signature{raw: "()"}, nil
	}
	if !strings.HasPrefix(s, "(") {
		return Signature{}, fmt.Errorf("signature %q: must start with '('", s)
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return Signature{}, fmt.Errorf("signature %q: missing ')'", s)
	}

	sig := Signature{raw: s}
	for i := 1; i < end; i++ {
		c := s[i]
		switch c {
		case KindI32, KindI64, KindF32, KindF64, KindExternref, KindPointer, KindString:
		case KindLength:
			if len(sig.params) == 0 || sig.params[len(sig.params)-1] != KindPointer {
				return Signature{}, fmt.Errorf("signature %q: '~' at %d must follow '*'", s, i)
			}
		default:
			return Signature{}, fmt.Errorf("signature %q: unknown parameter kind %q", s, c)
		}
		sig.params = append(sig.params, c)
	}

	rest := s[end+1:]
	if len(rest) > 1 {
		return Signature{}, fmt.Errorf("signature %q: at most one result", s)
	}
	if len(rest) == 1 {
		switch rest[0] {
		case KindI32, KindI64, KindF32, KindF64, KindExternref:
			sig.results = []byte{rest[0]}
		default:
			return Signature{}, fmt.Errorf("signature %q: invalid result kind %q", s, rest[0])
		}
	}
	return sig, nil
}

// MustParseSignature is ParseSignature for signatures known at compile time.
func MustParseSignature(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}

// ParamTypes returns the engine value types of the parameters.
func (s Signature) ParamTypes() []api.ValueType {
	return valueTypes(s.params)
}

// ResultTypes returns the engine value types of the results.
func (s Signature) ResultTypes() []api.ValueType {
	return valueTypes(s.results)
}

// Params returns the parameter kinds.
func (s Signature) Params() []byte {
	return append([]byte(nil), s.params...)
}

// Matches reports whether an imported function type agrees with the signature.
func (s Signature) Matches(params, results []api.ValueType) bool {
	return equalTypes(s.ParamTypes(), params) && equalTypes(s.ResultTypes(), results)
}

func (s Signature) String() string {
	return s.raw
}

func valueTypes(kinds []byte) []api.ValueType {
	if len(kinds) == 0 {
		return nil
	}
	types := make([]api.ValueType, len(kinds))
	for i, k := range kinds {
		switch k {
		case KindI64:
			types[i] = api.ValueTypeI64
		case KindF32:
			types[i] = api.ValueTypeF32
		case KindF64:
			types[i] = api.ValueTypeF64
		case KindExternref:
			types[i] = api.ValueTypeExternref
		default:
			types[i] = api.ValueTypeI32
		}
	}
	return types
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
