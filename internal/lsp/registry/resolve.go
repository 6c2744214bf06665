package registry

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BinaryNotFoundError reports that a descriptor's executable could not
// be located by any resolution strategy.
type BinaryNotFoundError struct {
	Name        string   // executable name
	Searched    []string // locations tried, in order
	InstallHint string   // suggested install command
}

func (e *BinaryNotFoundError) Error() string {
	msg := fmt.Sprintf("language server %q not found (searched %v)",
		e.Name, strings.Join(e.Searched, ", "))
	if e.InstallHint != "" {
		msg += "; install it with: " + e.InstallHint
	}
	return msg
}

// ResolveBinary locates the executable for d. The resolution order is:
// global package manager bin directories, the inherited search path,
// the workspace's node_modules/.bin, and finally a bundled binary named
// <name>-language-server in the data directory. The first existing
// path wins.
func (r *Registry) ResolveBinary(d *Descriptor, workspace string) (string, error) {
	var searched []string

	for _, dir := range globalBinDirs() {
		p := filepath.Join(dir, d.Binary)
		if isExecutable(p) {
			return p, nil
		}
		searched = append(searched, dir)
	}

	if p, err := exec.LookPath(d.Binary); err == nil {
		return p, nil
	}
	searched = append(searched, "$PATH")

	if workspace != "" {
		p := filepath.Join(workspace, "node_modules", ".bin", d.Binary)
		if isExecutable(p) {
			return p, nil
		}
		searched = append(searched, filepath.Dir(p))
	}

	if r.dataDir != "" {
		p := filepath.Join(r.dataDir, d.Name+"-language-server")
		if isExecutable(p) {
			return p, nil
		}
		searched = append(searched, r.dataDir)
	}

	return "", &BinaryNotFoundError{
		Name:        d.Binary,
		Searched:    searched,
		InstallHint: d.InstallHint,
	}
}

// globalBinDirs returns the well-known bin directories of the host
// package managers.
func globalBinDirs() []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".bun", "bin"),
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, ".yarn", "bin"),
			filepath.Join(home, ".local", "share", "pnpm"),
		)
	}
	dirs = append(dirs, "/usr/local/bin", "/opt/homebrew/bin")
	return dirs
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
