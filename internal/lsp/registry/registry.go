// Package registry maps files and workspaces to language server
// descriptors and locates server executables.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/editorlab/lspmux/internal/lsp/config"
)

// Descriptor describes how to locate and launch a language server.
// Descriptors are immutable after registry construction.
type Descriptor struct {
	// Name identifies the server (e.g. "typescript"). Together with a
	// workspace root it forms the instance key in the manager.
	Name string

	// Binary is the name of the server executable.
	Binary string

	// Args are passed to Binary on startup.
	Args []string

	// Extensions lists file extensions (without dot) handled by this server.
	Extensions []string

	// Markers lists workspace marker files that select this server.
	Markers []string

	// InstallHint is the command suggested when Binary cannot be found.
	InstallHint string

	// StderrFile and LogFile redirect server output; see config.Server.
	StderrFile string
	LogFile    string

	// Options are passed as-is during initialization.
	Options interface{}
}

// Registry is an ordered list of server descriptors. Matching is
// first-match over the list. Registries are read-only after New.
type Registry struct {
	descriptors []*Descriptor
	dataDir     string
}

// New builds a registry from cfg. User-configured servers are placed
// ahead of the built-in descriptors so they win the first-match scan.
func New(cfg *config.Config) *Registry {
	var descriptors []*Descriptor

	keys := make([]string, 0, len(cfg.Servers))
	for key := range cfg.Servers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		s := cfg.Servers[key]
		descriptors = append(descriptors, &Descriptor{
			Name:        key,
			Binary:      s.Binary,
			Args:        s.Args,
			Extensions:  s.Extensions,
			Markers:     s.Markers,
			InstallHint: s.InstallHint,
			StderrFile:  s.StderrFile,
			LogFile:     s.LogFile,
			Options:     s.Options,
		})
	}
	descriptors = append(descriptors, builtins()...)

	return &Registry{
		descriptors: descriptors,
		dataDir:     cfg.DataDirectory,
	}
}

func builtins() []*Descriptor {
	return []*Descriptor{
		{
			Name:        "typescript",
			Binary:      "typescript-language-server",
			Args:        []string{"--stdio"},
			Extensions:  []string{"ts", "tsx", "js", "jsx", "mjs", "cjs", "json"},
			Markers:     []string{"package.json", "tsconfig.json", "jsconfig.json"},
			InstallHint: "bun add -g typescript-language-server",
		},
	}
}

// ServerForFile returns the first descriptor handling the file's
// extension, or nil if no server is known for it. A nil result is not
// an error at this layer.
func (r *Registry) ServerForFile(path string) *Descriptor {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return nil
	}
	for _, d := range r.descriptors {
		for _, e := range d.Extensions {
			if e == ext {
				return d
			}
		}
	}
	return nil
}

// ServerForWorkspace returns the first descriptor whose marker file
// exists in the workspace root, or nil.
func (r *Registry) ServerForWorkspace(root string) *Descriptor {
	for _, d := range r.descriptors {
		for _, m := range d.Markers {
			if _, err := os.Stat(filepath.Join(root, m)); err == nil {
				return d
			}
		}
	}
	return nil
}

// Descriptors returns the ordered descriptor list.
func (r *Registry) Descriptors() []*Descriptor {
	return r.descriptors
}
