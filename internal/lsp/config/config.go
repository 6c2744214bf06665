// Package config defines lspmux configuration.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File represents the user configuration file for lspmux.
type File struct {
	// Directory holding bundled language server binaries.
	// Defaults to the lspmux directory under the user config directory.
	DataDirectory string

	// Maximum number of completion items returned per request.
	// Items beyond this count are discarded.
	MaxCompletionItems int

	// Per-request timeout in seconds for completion and hover.
	RequestTimeout int

	// Don't forward diagnostics sent by language servers.
	HideDiagnostics bool

	// Print to stderr the full rpc trace in lsp inspector format.
	RPCTrace bool

	// Language servers keyed by a user provided name. These take
	// precedence over the built-in server registry.
	Servers map[string]*Server
}

// Config configures lspmux.
type Config struct {
	File

	// Show current configuration and exit
	ShowConfig bool

	// Print more messages to stderr
	Verbose bool
}

// Server describes a language server.
type Server struct {
	// Binary is the name of the server executable.
	Binary string

	// Args are passed to Binary on startup.
	Args []string

	// Extensions lists the file extensions (without dot) handled
	// by this server.
	Extensions []string

	// Markers lists workspace marker files (e.g. package.json) that
	// select this server for a workspace.
	Markers []string

	// InstallHint is a command suggested to the user when Binary
	// cannot be found.
	InstallHint string

	// Write stderr of the server to this file.
	// If it's not an absolute path, it'll become relative to the cache directory.
	StderrFile string

	// Write log messages (window/logMessage notifications) sent by the server
	// to this file instead of stderr.
	// If it's not an absolute path, it'll become relative to the cache directory.
	LogFile string

	// Options contain server-specific settings that are passed as-is
	// during initialization.
	Options interface{}
}

// Default returns the default Config.
func Default() *Config {
	dataDir := ""
	if dir, err := os.UserConfigDir(); err == nil {
		dataDir = filepath.Join(dir, "lspmux")
	}
	return &Config{
		File: File{
			DataDirectory:      dataDir,
			MaxCompletionItems: 100,
			RequestTimeout:     15,
			Servers:            nil,
		},
	}
}

func userConfigFilename() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lspmux/config.toml"), nil
}

// Load loads Config from file system, falling back to a default if it doesn't exist.
func Load() (*Config, error) {
	def := Default()

	filename, err := userConfigFilename()
	if err != nil {
		return nil, err
	}
	_, err = os.Stat(filename)
	if os.IsNotExist(err) {
		return def, nil
	}

	cfg, err := load(filename)
	if err != nil {
		return nil, err
	}

	if cfg.DataDirectory == "" {
		cfg.DataDirectory = def.DataDirectory
	}
	if cfg.MaxCompletionItems <= 0 {
		cfg.MaxCompletionItems = def.MaxCompletionItems
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	cacheDir = filepath.Join(cacheDir, "lspmux")
	err = os.MkdirAll(cacheDir, 0700)
	if err != nil {
		return nil, err
	}
	for key := range cfg.Servers {
		s := cfg.Servers[key]
		if s.StderrFile != "" && !filepath.IsAbs(s.StderrFile) {
			s.StderrFile = filepath.Join(cacheDir, s.StderrFile)
		}
		if s.LogFile != "" && !filepath.IsAbs(s.LogFile) {
			s.LogFile = filepath.Join(cacheDir, s.LogFile)
		}
	}
	return cfg, nil
}

func load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var f File
	err = toml.Unmarshal(b, &f)
	if err != nil {
		return nil, err
	}
	return &Config{File: f}, nil
}

// Write writes Config to writer w.
func Write(w io.Writer, cfg *Config) error {
	filename, err := userConfigFilename()
	if err == nil {
		fmt.Fprintf(w, "# Configuration file location: %v\n\n", filename)
	} else {
		fmt.Fprintf(w, "# Could not find configuration file location: %v\n\n", err)
	}
	return toml.NewEncoder(w).Encode(cfg.File)
}

// ParseFlags parses command line flags and updates Config.
func (cfg *Config) ParseFlags(f *flag.FlagSet, arguments []string) error {
	f.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose output")
	f.BoolVar(&cfg.ShowConfig, "showconfig", false, "show configuration values and exit")
	f.StringVar(&cfg.DataDirectory, "datadir", cfg.DataDirectory,
		"directory containing bundled language server binaries")
	f.IntVar(&cfg.MaxCompletionItems, "maxcomp", cfg.MaxCompletionItems,
		"maximum number of completion items returned per request")
	f.IntVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout,
		"per-request timeout in seconds")
	f.BoolVar(&cfg.HideDiagnostics, "hidediag", cfg.HideDiagnostics,
		"hide diagnostics sent by language servers")
	f.BoolVar(&cfg.RPCTrace, "rpc.trace", cfg.RPCTrace,
		"print the full rpc trace in lsp inspector format")
	return f.Parse(arguments)
}
