package runtime

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// PSIModuleName is the import module of the process-system-interface.
const PSIModuleName = wasi_snapshot_preview1.ModuleName

// instantiatePSI instantiates the process-system-interface host module
// once per engine.
func instantiatePSI(ctx context.Context, r wazero.Runtime) error {
	if r.Module(PSIModuleName) != nil {
		return nil
	}

	builder := r.NewHostModuleBuilder(PSIModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)

	_, err := builder.Instantiate(ctx)
	return err
}

// psiFunctionNames lists what guests may import from the PSI module.
func psiFunctionNames(r wazero.Runtime) map[string]struct{} {
	names := make(map[string]struct{})
	mod := r.Module(PSIModuleName)
	if mod == nil {
		return names
	}
	for name := range mod.ExportedFunctionDefinitions() {
		names[name] = struct{}{}
	}
	return names
}
