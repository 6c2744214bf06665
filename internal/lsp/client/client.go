// Package client implements a Language Server Protocol client on top
// of a server subprocess's standard pipes. Messages are framed and
// correlated by JSON-RPC 2.0; server-initiated notifications are
// dispatched to a sink and never block pending requests.
package client

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/editorlab/lspmux/internal/lsputil"
)

// Verbose turns on debugging prints for server traffic.
var Verbose = false

// handshakeTimeout bounds the initialize round trip. A server that
// cannot answer initialize within this window is treated as failed.
const handshakeTimeout = 30 * time.Second

// DiagnosticsWriter receives textDocument/publishDiagnostics
// notifications sent by a server.
type DiagnosticsWriter interface {
	WriteDiagnostics(params *lsp.PublishDiagnosticsParams)
}

// Config contains client configuration values.
type Config struct {
	// ServerName names the server in log and error messages.
	ServerName string

	// DiagWriter receives diagnostics. May be nil.
	DiagWriter DiagnosticsWriter

	// Logger receives window/logMessage output.
	// A nil Logger falls back to the standard logger.
	Logger *log.Logger

	// HideDiagnostics drops diagnostics instead of forwarding them.
	HideDiagnostics bool

	// RPCTrace prints all JSON-RPC traffic to stderr.
	RPCTrace bool

	// Options are passed as-is in initializationOptions.
	Options interface{}

	// StderrFile receives the server's stderr output.
	StderrFile string
}

// handler handles JSON-RPC requests and notifications sent by the server.
type handler struct {
	diagWriter DiagnosticsWriter
	logger     *log.Logger
	hideDiag   bool
}

func (h *handler) logf(format string, a ...interface{}) {
	if h.logger != nil {
		h.logger.Printf(format, a...)
		return
	}
	log.Printf(format, a...)
}

func (h *handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if len(req.Method) > 2 && req.Method[:2] == "$/" {
		// Ignore server dependent notifications
		if Verbose {
			h.logf("Handle: got request %#v\n", req)
		}
		return
	}
	switch req.Method {
	case "textDocument/publishDiagnostics":
		if h.diagWriter == nil || h.hideDiag {
			return
		}
		var params lsp.PublishDiagnosticsParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			h.logf("diagnostics unmarshal failed: %v\n", err)
			return
		}
		h.diagWriter.WriteDiagnostics(&params)
	case "window/showMessage":
		var params lsp.ShowMessageParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			h.logf("window/showMessage unmarshal failed: %v\n", err)
			return
		}
		h.logf("LSP %v: %v\n", params.Type, params.Message)
	case "window/logMessage":
		var params lsp.LogMessageParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			h.logf("window/logMessage unmarshal failed: %v\n", err)
			return
		}
		if params.Type == lsp.MTError || params.Type == lsp.MTWarning || Verbose {
			h.logf("LSP %v: %v\n", params.Type, params.Message)
		}
	default:
		if Verbose {
			h.logf("Handle: got request %#v\n", req)
		}
	}
}

// Client is a connection to a language server that has completed the
// initialize handshake. The handle may be shared across concurrent
// callers; all connection state is synchronized internally.
type Client struct {
	rpc    *jsonrpc2.Conn
	server string
	caps   lsp.ServerCapabilities
}

// New connects to a language server over conn and performs the
// initialize/initialized handshake with rootDir as the workspace
// root. On handshake failure the connection is closed and a
// HandshakeError is returned; killing the process is the caller's
// responsibility.
func New(conn io.ReadWriteCloser, rootDir string, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{})
	var opts []jsonrpc2.ConnOpt
	if cfg.RPCTrace {
		opts = append(opts, jsonrpc2.LogMessages(log.New(os.Stderr, "", 0)))
	}
	rpc := jsonrpc2.NewConn(context.Background(), stream, &handler{
		diagWriter: cfg.DiagWriter,
		logger:     cfg.Logger,
		hideDiag:   cfg.HideDiagnostics,
	}, opts...)

	c := &Client{
		rpc:    rpc,
		server: cfg.ServerName,
	}
	if err := c.initialize(rootDir, cfg.Options); err != nil {
		rpc.Close()
		return nil, &HandshakeError{Server: cfg.ServerName, Err: err}
	}
	return c, nil
}

func (c *Client) initialize(rootDir string, options interface{}) error {
	d, err := filepath.Abs(rootDir)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	params := &lsp.InitializeParams{
		ProcessID:             os.Getpid(),
		RootURI:               lsputil.ToURI(d),
		InitializationOptions: options,
	}
	var result lsp.InitializeResult
	if err := c.rpc.Call(ctx, "initialize", params, &result); err != nil {
		return errors.Wrap(err, "initialize failed")
	}
	if err := c.rpc.Notify(ctx, "initialized", &struct{}{}); err != nil {
		return errors.Wrap(err, "initialized failed")
	}
	c.caps = result.Capabilities
	return nil
}

// Capabilities returns the capabilities the server reported during
// the handshake.
func (c *Client) Capabilities() lsp.ServerCapabilities {
	return c.caps
}

// Close terminates the connection. Pending requests resolve with an
// error.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// DisconnectNotify returns a channel that is closed when the
// connection to the server is lost.
func (c *Client) DisconnectNotify() <-chan struct{} {
	return c.rpc.DisconnectNotify()
}

// Completion requests completions at pos.
func (c *Client) Completion(ctx context.Context, pos *lsp.TextDocumentPositionParams) ([]lsp.CompletionItem, error) {
	params := &lsp.CompletionParams{
		TextDocumentPositionParams: *pos,
		Context:                    lsp.CompletionContext{},
	}
	var raw json.RawMessage
	if err := c.rpc.Call(ctx, "textDocument/completion", params, &raw); err != nil {
		return nil, errors.Wrapf(err, "completion request to %q failed", c.server)
	}
	return parseCompletionItems(raw)
}

// Servers answer completion with either a CompletionList or a bare
// item array.
func parseCompletionItems(raw json.RawMessage) ([]lsp.CompletionItem, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list lsp.CompletionList
	if err := json.Unmarshal(raw, &list); err == nil {
		return list.Items, nil
	}
	var items []lsp.CompletionItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrap(err, "malformed completion response")
	}
	return items, nil
}

// Hover requests hover information at pos. A nil result means the
// server had nothing to say about the position.
func (c *Client) Hover(ctx context.Context, pos *lsp.TextDocumentPositionParams) (*lsputil.Hover, error) {
	var hov lsputil.Hover
	if err := c.rpc.Call(ctx, "textDocument/hover", pos, &hov); err != nil {
		return nil, errors.Wrapf(err, "hover request to %q failed", c.server)
	}
	if len(hov.Contents) == 0 && hov.Range == nil {
		return nil, nil
	}
	return &hov, nil
}

// DidOpen notifies the server that filename was opened with the given
// contents.
func (c *Client) DidOpen(ctx context.Context, filename, languageID string, body []byte) error {
	params := &lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        lsputil.ToURI(filename),
			LanguageID: languageID,
			Version:    1,
			Text:       string(body),
		},
	}
	return c.rpc.Notify(ctx, "textDocument/didOpen", params)
}

// DidChange notifies the server of new document contents. Changes are
// whole-document replacements, not incremental ranges.
func (c *Client) DidChange(ctx context.Context, filename string, body []byte, version int) error {
	params := &lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{
				URI: lsputil.ToURI(filename),
			},
			Version: version,
		},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{
			{Text: string(body)},
		},
	}
	return c.rpc.Notify(ctx, "textDocument/didChange", params)
}

// DidClose notifies the server that filename was closed.
func (c *Client) DidClose(ctx context.Context, filename string) error {
	params := &lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{
			URI: lsputil.ToURI(filename),
		},
	}
	return c.rpc.Notify(ctx, "textDocument/didClose", params)
}
