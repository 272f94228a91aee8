package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/manager"
	"github.com/wippyai/wasm-bridge/task"
	"github.com/wippyai/wasm-bridge/vfs"
)

func newRunCommand() *cobra.Command {
	var showScreen, showMetrics bool

	cmd := &cobra.Command{
		Use:   "run <file.wasm>",
		Short: "Execute the _start export of a guest program",
		Long: `Execute the _start export of a guest program in a fresh task.

The guest's standard streams are those of this process. Its exit status is
the i32 returned by _start or the code passed to proc_exit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			h, err := newHost(cfg, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			defer func() { _ = h.logger.Sync() }()

			reg := prometheus.NewRegistry()
			if err := h.metrics.Register(reg); err != nil {
				return err
			}

			status, err := h.run(cmd.Context(), args[0], os.Stdin, os.Stdout, os.Stderr)
			if err != nil {
				return err
			}

			report := newPrinter(os.Stderr)
			if showScreen || h.toolkit.Len() > 1 {
				report.printf("%s\n", h.toolkit.Render())
			}
			if showMetrics {
				if err := printHostCalls(report, reg); err != nil {
					return err
				}
			}
			if status != 0 {
				return &exitError{code: int(status)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showScreen, "show-screen", false, "render the guest widget tree after the run, even when empty")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print native symbol call counts after the run")
	return cmd
}

// run executes the guest at path through the process-wide manager, as a
// child of a shell task carrying the configured environment.
func (h *host) run(ctx context.Context, path string, stdin io.Reader, stdout, stderr io.Writer) (uint32, error) {
	buffer, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read guest: %w", err)
	}

	m, err := manager.Initialize(ctx, manager.Options{
		Tasks:   h.tasks,
		Files:   h.files,
		Runtime: h.runtimeConfig(),
		Metrics: h.metrics,
		Logger:  h.logger.Named("manager"),
	}, h.collections()...)
	if err != nil {
		return 0, err
	}
	// One guest per process, so the process-wide manager goes with it.
	defer func() { _ = m.Close(ctx) }()

	shell, err := h.tasks.NewTask("shell", 0)
	if err != nil {
		return 0, err
	}
	vars, err := h.config.Variables()
	if err != nil {
		return 0, err
	}
	for _, v := range vars {
		if err := h.tasks.SetEnvironmentVariable(shell, v[0], v[1]); err != nil {
			return 0, err
		}
	}

	var status uint32
	_, err = h.tasks.Spawn(ctx, shell, filepath.Base(path), func(ctx context.Context) error {
		id, _ := task.IdentifierFrom(ctx)
		defer func() {
			if err := h.files.CloseAll(id); err != nil {
				h.logger.Warn("closing guest files", zap.Error(err))
			}
		}()

		for _, s := range []struct {
			id vfs.FileIdentifier
			r  io.Reader
			w  io.Writer
		}{
			{vfs.StandardIn, stdin, nil},
			{vfs.StandardOut, nil, stdout},
			{vfs.StandardError, nil, stderr},
		} {
			if err := h.files.InsertStream(id, s.id, s.r, s.w); err != nil {
				return err
			}
		}

		s, err := m.Execute(ctx, buffer, h.config.StackSize,
			vfs.StandardIn, vfs.StandardOut, vfs.StandardError, id)
		status = s
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := h.tasks.Wait(); err != nil {
		return 0, err
	}
	return status, nil
}

func printHostCalls(p *printer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	counts := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "wasm_bridge_host_calls_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "symbol" {
					counts[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	p.printf("%s\n", p.paint(titleStyle, "Native calls"))
	if len(names) == 0 {
		p.printf("%s\n", p.paint(helpStyle, "  none"))
	}
	for _, name := range names {
		p.printf("  %-40s %s\n", p.paint(symbolStyle, name), p.paint(resultStyle, fmt.Sprintf("%.0f", counts[name])))
	}
	return nil
}
