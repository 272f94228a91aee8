package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.wasm>",
		Short: "List the imports and exports of a guest and check that the host provides every import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			buffer, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read guest: %w", err)
			}
			summary, err := runtime.Inspect(buffer)
			if err != nil {
				return err
			}

			h, err := newHost(cfg, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			rt, err := h.build(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(cmd.Context()) }()

			missing := map[string]bool{}
			checkErr := rt.CheckImports(summary)
			var mie *errors.MissingImportsError
			if stderrors.As(checkErr, &mie) {
				for _, imp := range mie.Imports {
					missing[imp.Module+"#"+imp.Name] = true
				}
			}

			p := newPrinter(os.Stdout)
			p.printf("%s\n\n", p.paint(titleStyle, filepath.Base(args[0])))
			if summary.HasMemory {
				p.printf("Memory: %d pages\n\n", summary.MemoryPages)
			} else {
				p.printf("Memory: %s\n\n", p.paint(helpStyle, "none"))
			}

			p.printf("Imports:\n")
			for _, imp := range summary.Imports {
				mark := p.paint(resultStyle, "ok")
				if missing[imp.Module+"#"+imp.Name] {
					mark = p.paint(errorStyle, "missing")
				}
				p.printf("  %s %s.%s %s\n", mark, p.paint(typeStyle, imp.Module), p.paint(symbolStyle, imp.Name), p.paint(helpStyle, imp.Kind))
			}

			exports := append([]string(nil), summary.ExportFunctions...)
			sort.Strings(exports)
			p.printf("\nExported functions:\n")
			for _, name := range exports {
				p.printf("  %s\n", p.paint(symbolStyle, name))
			}
			if !summary.Exports("_start") {
				p.printf("%s\n", p.paint(helpStyle, "\nno _start export: the guest cannot be run"))
			}
			return checkErr
		},
	}
}

func newSymbolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "List the native symbols guests can import from the host module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			h, err := newHost(cfg, "symbols")
			if err != nil {
				return err
			}
			rt, err := h.build(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(cmd.Context()) }()

			byCollection := map[string][]runtime.Symbol{}
			var order []string
			for _, s := range rt.Symbols() {
				if _, ok := byCollection[s.Collection]; !ok {
					order = append(order, s.Collection)
				}
				byCollection[s.Collection] = append(byCollection[s.Collection], s)
			}
			sort.Strings(order)

			p := newPrinter(os.Stdout)
			p.printf("%s\n", p.paint(titleStyle, "Module "+runtime.NativeModuleName))
			for _, c := range order {
				p.printf("\n%s\n", p.paint(helpStyle, c))
				for _, s := range byCollection[c] {
					name := strings.TrimPrefix(s.Name, c+"_")
					p.printf("  %s%s %s\n", p.paint(helpStyle, c+"_"), p.paint(symbolStyle, name), p.paint(typeStyle, s.Signature.String()))
				}
			}
			return nil
		},
	}
}

// build creates a runtime with every collection registered but no guest.
func (h *host) build(ctx context.Context) (*runtime.Runtime, error) {
	return runtime.NewBuilder().WithConfig(h.runtimeConfig()).Register(h.collections()...).Build(ctx)
}
