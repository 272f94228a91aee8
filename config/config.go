// Package config loads bridge settings from defaults, an optional YAML
// file, WASM_BRIDGE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/network"
	"github.com/wippyai/wasm-bridge/runtime"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WASM_BRIDGE"

// Keys, also used as flag names with '-' for '_'.
const (
	KeyStackSize           = "stack_size"
	KeyMemoryLimitPages    = "memory_limit_pages"
	KeyCompilationCacheDir = "compilation_cache_dir"
	KeyRootDirectory       = "root_directory"
	KeyDNSServer           = "dns_server"
	KeyNetworkTimeout      = "network_timeout"
	KeyLogLevel            = "log_level"
	KeyEnvironment         = "environment"
)

// Config holds the settings of one bridge process.
type Config struct {
	StackSize           uint32        `mapstructure:"stack_size"`
	MemoryLimitPages    uint32        `mapstructure:"memory_limit_pages"`
	CompilationCacheDir string        `mapstructure:"compilation_cache_dir"`
	RootDirectory       string        `mapstructure:"root_directory"`
	DNSServer           string        `mapstructure:"dns_server"`
	NetworkTimeout      time.Duration `mapstructure:"network_timeout"`
	LogLevel            string        `mapstructure:"log_level"`
	Environment         []string      `mapstructure:"environment"`
}

// Default returns the built-in settings. An empty RootDirectory selects
// an in-memory file system.
func Default() Config {
	return Config{
		StackSize:      runtime.DefaultStackSize,
		DNSServer:      "1.1.1.1:53",
		NetworkTimeout: network.DefaultTimeout,
		LogLevel:       "info",
	}
}

// BindFlags registers one flag per key on flags.
func BindFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.Uint32(flagName(KeyStackSize), d.StackSize, "guest call stack size in bytes")
	flags.Uint32(flagName(KeyMemoryLimitPages), d.MemoryLimitPages, "maximum linear memory per instance in 64KiB pages (0 = engine default)")
	flags.String(flagName(KeyCompilationCacheDir), d.CompilationCacheDir, "directory for compiled module cache")
	flags.String(flagName(KeyRootDirectory), d.RootDirectory, "host directory served as the guest file system root")
	flags.String(flagName(KeyDNSServer), d.DNSServer, "DNS server used by guest name resolution (host:port)")
	flags.Duration(flagName(KeyNetworkTimeout), d.NetworkTimeout, "timeout for guest DNS queries and socket operations")
	flags.String(flagName(KeyLogLevel), d.LogLevel, "log level (debug, info, warn, error)")
	flags.StringArray(flagName(KeyEnvironment), nil, "environment variable of the guest task as NAME=value (repeatable)")
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Load reads the configuration. path may be empty; flags may be nil.
// Only flags that were set on the command line override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault(KeyStackSize, d.StackSize)
	v.SetDefault(KeyMemoryLimitPages, d.MemoryLimitPages)
	v.SetDefault(KeyCompilationCacheDir, d.CompilationCacheDir)
	v.SetDefault(KeyRootDirectory, d.RootDirectory)
	v.SetDefault(KeyDNSServer, d.DNSServer)
	v.SetDefault(KeyNetworkTimeout, d.NetworkTimeout)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyEnvironment, []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		var errs []string
		flags.VisitAll(func(f *pflag.Flag) {
			if !f.Changed {
				return
			}
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
				errs = append(errs, err.Error())
			}
		})
		if len(errs) > 0 {
			return nil, fmt.Errorf("bind flags: %s", strings.Join(errs, "; "))
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges and formats.
func (c *Config) Validate() error {
	if c.StackSize < runtime.MinimumStackSize {
		return fmt.Errorf("%s: %d is below the minimum of %d", KeyStackSize, c.StackSize, runtime.MinimumStackSize)
	}
	if c.MemoryLimitPages > 65536 {
		return fmt.Errorf("%s: %d exceeds 65536 pages", KeyMemoryLimitPages, c.MemoryLimitPages)
	}
	if _, _, err := net.SplitHostPort(c.DNSServer); err != nil {
		return fmt.Errorf("%s: %w", KeyDNSServer, err)
	}
	if c.NetworkTimeout <= 0 {
		return fmt.Errorf("%s: must be positive", KeyNetworkTimeout)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	if _, err := c.Variables(); err != nil {
		return err
	}
	return nil
}

// Variables splits the NAME=value entries of Environment. Entries are
// kept as a list because viper folds map keys to lower case.
func (c *Config) Variables() ([][2]string, error) {
	vars := make([][2]string, 0, len(c.Environment))
	for _, entry := range c.Environment {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%s: %q is not NAME=value", KeyEnvironment, entry)
		}
		vars = append(vars, [2]string{name, value})
	}
	return vars, nil
}

// RuntimeConfig returns the engine settings. The root file system is
// attached by the caller.
func (c *Config) RuntimeConfig() runtime.Config {
	return runtime.Config{
		CompilationCacheDir: c.CompilationCacheDir,
		MemoryLimitPages:    c.MemoryLimitPages,
	}
}

// Logger builds a zap logger at the configured level: a development
// logger for debug, a production logger otherwise.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
