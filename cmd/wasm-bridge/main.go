// Command wasm-bridge runs guest programs against the native symbol
// collections and inspects guest binaries.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/config"
)

func main() {
	os.Exit(execute())
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "wasm-bridge",
		Short:         "Run WebAssembly guests against host services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "configuration file (YAML)")
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(newRunCommand(), newInspectCommand(), newSymbolsCommand())
	return root
}

func execute() int {
	err := newRootCommand().Execute()
	if err == nil {
		return 0
	}
	if e, ok := err.(*exitError); ok {
		return e.code
	}
	p := newPrinter(os.Stderr)
	p.printf("%s\n", p.paint(errorStyle, "Error: "+err.Error()))
	return 1
}
