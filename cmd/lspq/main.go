// The program lspq is a one-shot Language Server Protocol query tool.
//
// It starts the language server responsible for a file, opens the
// document, issues a single request, prints the result, and tears the
// server down again.
//
//	Usage: lspq [flags] <sub-command> [args...]
//
// List of sub-commands:
//
//	comp <file> <line> <col>
//		Show completions at the given zero-based position.
//
//	hov <file> <line> <col>
//		Show hover information at the given zero-based position.
//
//	servers
//		Print the list of known language servers and any running
//		instances.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	lsp "github.com/sourcegraph/go-lsp"

	"github.com/editorlab/lspmux/internal/lsp/config"
	"github.com/editorlab/lspmux/internal/lsp/manager"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: lspq [flags] <comp|hov|servers> [file line col]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}
	workspace := ""
	flag.StringVar(&workspace, "workspace", "", "workspace root directory (default: nearest directory with a marker file)")
	if err := cfg.ParseFlags(flag.CommandLine, os.Args[1:]); err != nil {
		log.Fatalf("could not parse flags: %v", err)
	}
	if cfg.ShowConfig {
		config.Write(os.Stdout, cfg)
		return
	}
	manager.Verbose = cfg.Verbose

	mgr := manager.New(cfg)
	defer mgr.ShutdownAll()

	if flag.NArg() < 1 {
		usage()
	}
	if flag.Arg(0) == "servers" {
		mgr.PrintTo(os.Stdout)
		return
	}
	if flag.NArg() < 4 {
		usage()
	}
	file, err := filepath.Abs(flag.Arg(1))
	if err != nil {
		log.Fatalf("%v", err)
	}
	line, err := strconv.Atoi(flag.Arg(2))
	if err != nil {
		usage()
	}
	col, err := strconv.Atoi(flag.Arg(3))
	if err != nil {
		usage()
	}
	if !mgr.Supported(file) {
		log.Fatalf("no language support for %v", file)
	}
	if workspace == "" {
		workspace = mgr.Registry().WorkspaceRoot(file)
	}

	ctx := context.Background()
	if err := mgr.StartForFile(file, workspace, nil); err != nil {
		log.Fatalf("could not start language server: %v", err)
	}
	defer mgr.StopForFile(file)

	body, err := os.ReadFile(file)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := mgr.DidOpen(ctx, file, body); err != nil {
		log.Fatalf("didOpen failed: %v", err)
	}
	defer mgr.DidClose(ctx, file)

	switch flag.Arg(0) {
	case "comp":
		items, err := mgr.Completions(ctx, file, line, col)
		if err != nil {
			log.Fatalf("completion failed: %v", err)
		}
		if len(items) == 0 {
			fmt.Println("no completion")
			return
		}
		for _, item := range items {
			printCompletionItem(item)
		}
	case "hov":
		hov, err := mgr.Hover(ctx, file, line, col)
		if err != nil {
			log.Fatalf("hover failed: %v", err)
		}
		if hov == nil {
			fmt.Println("no hover information")
			return
		}
		fmt.Println(hov.Text())
	default:
		usage()
	}
}

func printCompletionItem(item lsp.CompletionItem) {
	if item.Detail != "" {
		fmt.Printf("%v %v\n", item.Label, item.Detail)
		return
	}
	fmt.Printf("%v\n", item.Label)
}
