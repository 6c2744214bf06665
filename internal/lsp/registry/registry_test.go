package registry

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/editorlab/lspmux/internal/lsp/config"
)

func TestServerForFile(t *testing.T) {
	r := New(config.Default())

	tests := []struct {
		path string
		want string // server name; "" means nil
	}{
		{"/w/main.ts", "typescript"},
		{"/w/main.tsx", "typescript"},
		{"/w/index.js", "typescript"},
		{"/w/package.json", "typescript"},
		{"/w/main.py", ""},
		{"/w/Makefile", ""},
	}
	for _, test := range tests {
		d := r.ServerForFile(test.path)
		switch {
		case d == nil && test.want != "":
			t.Errorf("ServerForFile(%q) = nil; want %q", test.path, test.want)
		case d != nil && d.Name != test.want:
			t.Errorf("ServerForFile(%q) = %q; want %q", test.path, d.Name, test.want)
		}
	}
}

func TestUserServersTakePrecedence(t *testing.T) {
	cfg := config.Default()
	cfg.Servers = map[string]*config.Server{
		"deno": {
			Binary:     "deno",
			Args:       []string{"lsp"},
			Extensions: []string{"ts"},
		},
	}
	r := New(cfg)
	d := r.ServerForFile("/w/main.ts")
	if d == nil || d.Name != "deno" {
		t.Fatalf("ServerForFile(main.ts) = %v; want deno", d)
	}
	// Extensions not claimed by the user server still fall through
	// to the builtin.
	d = r.ServerForFile("/w/main.tsx")
	if d == nil || d.Name != "typescript" {
		t.Fatalf("ServerForFile(main.tsx) = %v; want typescript", d)
	}
}

func TestServerForWorkspace(t *testing.T) {
	r := New(config.Default())

	root := t.TempDir()
	if d := r.ServerForWorkspace(root); d != nil {
		t.Errorf("ServerForWorkspace(empty dir) = %q; want nil", d.Name)
	}
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	d := r.ServerForWorkspace(root)
	if d == nil || d.Name != "typescript" {
		t.Errorf("ServerForWorkspace(with package.json) = %v; want typescript", d)
	}
}

func TestWorkspaceRoot(t *testing.T) {
	r := New(config.Default())

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "tsconfig.json"), []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "src", "components")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(sub, "app.ts")
	if got := r.WorkspaceRoot(file); got != root {
		t.Errorf("WorkspaceRoot(%q) = %q; want %q", file, got, root)
	}

	// No marker anywhere: fall back to the file's directory.
	bare := t.TempDir()
	file = filepath.Join(bare, "lone.ts")
	if got := r.WorkspaceRoot(file); got != bare {
		t.Errorf("WorkspaceRoot(%q) = %q; want %q", file, got, bare)
	}
}

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestResolveBinaryWorkspaceLocal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no executable bit on windows")
	}
	cfg := config.Default()
	cfg.DataDirectory = t.TempDir()
	r := New(cfg)
	d := &Descriptor{Name: "fake", Binary: "fakelang-server-0b1c"}

	workspace := t.TempDir()
	local := filepath.Join(workspace, "node_modules", ".bin", d.Binary)
	writeExecutable(t, local)

	got, err := r.ResolveBinary(d, workspace)
	if err != nil {
		t.Fatalf("ResolveBinary failed: %v", err)
	}
	if got != local {
		t.Errorf("ResolveBinary = %q; want %q", got, local)
	}
}

func TestResolveBinaryBundled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no executable bit on windows")
	}
	cfg := config.Default()
	cfg.DataDirectory = t.TempDir()
	r := New(cfg)
	d := &Descriptor{Name: "fake", Binary: "fakelang-server-0b1c"}

	bundled := filepath.Join(cfg.DataDirectory, "fake-language-server")
	writeExecutable(t, bundled)

	got, err := r.ResolveBinary(d, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveBinary failed: %v", err)
	}
	if got != bundled {
		t.Errorf("ResolveBinary = %q; want %q", got, bundled)
	}
}

func TestResolveBinaryNotFound(t *testing.T) {
	cfg := config.Default()
	cfg.DataDirectory = t.TempDir()
	r := New(cfg)
	d := &Descriptor{
		Name:        "fake",
		Binary:      "fakelang-server-0b1c",
		InstallHint: "bun add -g fakelang-server",
	}

	_, err := r.ResolveBinary(d, t.TempDir())
	if err == nil {
		t.Fatal("ResolveBinary succeeded; want BinaryNotFoundError")
	}
	var notFound *BinaryNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error is %T; want *BinaryNotFoundError", err)
	}
	if notFound.Name != d.Binary {
		t.Errorf("Name = %q; want %q", notFound.Name, d.Binary)
	}
	if len(notFound.Searched) == 0 {
		t.Errorf("Searched is empty")
	}
	if !strings.Contains(err.Error(), d.InstallHint) {
		t.Errorf("error %q does not mention install hint", err)
	}
}
