package manager

import "errors"

var (
	// ErrNoServer is returned when no server descriptor matches a
	// file or workspace.
	ErrNoServer = errors.New("no language server found")

	// ErrNoInstance is returned when a request is issued for a file
	// with no running language server instance.
	ErrNoInstance = errors.New("no running language server instance")
)
