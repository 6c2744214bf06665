package registry

import (
	"os"
	"path/filepath"
)

// WorkspaceRoot returns the workspace root directory for filename: the
// nearest ancestor directory containing a marker file of any
// registered server. When no marker is found the file's own directory
// is returned.
func (r *Registry) WorkspaceRoot(filename string) string {
	dir := filepath.Dir(filename)
	for d := dir; ; {
		for _, desc := range r.descriptors {
			for _, m := range desc.Markers {
				if _, err := os.Stat(filepath.Join(d, m)); err == nil {
					return d
				}
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			return dir
		}
		d = parent
	}
}
