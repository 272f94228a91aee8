package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/abicontext"
	"github.com/wippyai/wasm-bridge/bindings"
	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/graphics"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/network"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/task"
	"github.com/wippyai/wasm-bridge/vfs"
)

// host is the set of services guests reach through native symbols.
type host struct {
	config  *config.Config
	logger  *zap.Logger
	tasks   *task.Manager
	files   *vfs.VirtualFileSystem
	toolkit *graphics.Toolkit
	network *network.Manager
	metrics *metrics.Collectors
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path, cmd.Flags())
}

func newHost(cfg *config.Config, title string) (*host, error) {
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	runtime.SetLogger(logger.Named("runtime"))
	bindings.SetLogger(logger.Named("bindings"))
	abicontext.SetLogger(logger.Named("context"))

	var files *vfs.VirtualFileSystem
	if cfg.RootDirectory != "" {
		files = vfs.NewOS(cfg.RootDirectory, logger.Named("vfs"))
	} else {
		files = vfs.NewMemory(logger.Named("vfs"))
	}

	resolver := network.NewResolver(cfg.DNSServer, cfg.NetworkTimeout)
	return &host{
		config:  cfg,
		logger:  logger,
		tasks:   task.NewManager(),
		files:   files,
		toolkit: graphics.New(title),
		network: network.NewManager(resolver, cfg.NetworkTimeout, logger.Named("network")),
		metrics: metrics.New(),
	}, nil
}

func (h *host) collections() []runtime.Registrable {
	return []runtime.Registrable{
		bindings.FileSystem(h.files),
		bindings.Task(h.tasks),
		bindings.Graphics(h.toolkit),
		bindings.Network(h.network),
	}
}

// runtimeConfig preopens the guest file system for the process system
// interface as well, so both views share one tree.
func (h *host) runtimeConfig() runtime.Config {
	c := h.config.RuntimeConfig()
	c.RootFS = h.files.IOFS()
	c.Observer = h.metrics
	return c
}
