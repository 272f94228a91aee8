package runtime

import (
	"github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"

	"github.com/wippyai/wasm-bridge/errors"
)

// Import is one import of a guest binary.
type Import struct {
	Module string
	Name   string
	Kind   string
}

// Summary describes the imports and exports of a guest binary without
// compiling it.
type Summary struct {
	Imports         []Import
	ExportFunctions []string
	MemoryPages     uint32
	HasMemory       bool
}

// Inspect decodes buffer and summarizes its interface.
func Inspect(buffer []byte) (*Summary, error) {
	mod, err := binary.DecodeModule(buffer, wasm.CoreFeaturesV2)
	if err != nil {
		return nil, errors.CompilationError(err)
	}

	s := &Summary{}
	for _, imp := range mod.ImportSection {
		s.Imports = append(s.Imports, Import{
			Module: imp.Module,
			Name:   imp.Name,
			Kind:   wasm.ExternTypeName(imp.Type),
		})
		if imp.Type == wasm.ExternTypeMemory && imp.DescMem != nil {
			s.HasMemory = true
			s.MemoryPages = imp.DescMem.Min
		}
	}
	for _, exp := range mod.ExportSection {
		if exp.Type == wasm.ExternTypeFunc {
			s.ExportFunctions = append(s.ExportFunctions, exp.Name)
		}
	}
	if mod.MemorySection != nil {
		s.HasMemory = true
		s.MemoryPages = mod.MemorySection.Min
	}
	return s, nil
}

// Exports reports whether the binary exports a function called name.
func (s *Summary) Exports(name string) bool {
	for _, e := range s.ExportFunctions {
		if e == name {
			return true
		}
	}
	return false
}

// CheckImports verifies that every function the binary imports from the
// native or process-system-interface modules is provided by r. Imports
// from library modules must name an instantiated library.
func (r *Runtime) CheckImports(s *Summary) error {
	psi := psiFunctionNames(r.runtime)

	var missing []string
	for _, imp := range s.Imports {
		if imp.Kind != wasm.ExternTypeFuncName {
			continue
		}
		switch imp.Module {
		case NativeModuleName:
			if !r.HasSymbol(imp.Name) {
				missing = append(missing, imp.Module+"#"+imp.Name)
			}
		case PSIModuleName:
			if _, ok := psi[imp.Name]; !ok {
				missing = append(missing, imp.Module+"#"+imp.Name)
			}
		default:
			if _, ok := r.libraries[imp.Module]; !ok {
				missing = append(missing, imp.Module+"#"+imp.Name)
			}
		}
	}

	if len(missing) > 0 {
		return errors.InvalidModule("unresolved imports", errors.NewMissingImportsError(missing))
	}
	return nil
}
