// Package manager spawns language server processes on demand and
// multiplexes them across open files and workspaces.
//
// Each running server is an instance keyed by (workspace root, server
// name) and reference counted by the files attached to it; when the
// last file detaches, the instance is removed and its process killed.
package manager

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	lsp "github.com/sourcegraph/go-lsp"

	"github.com/editorlab/lspmux/internal/lsp/client"
	"github.com/editorlab/lspmux/internal/lsp/config"
	"github.com/editorlab/lspmux/internal/lsp/registry"
	"github.com/editorlab/lspmux/internal/lsputil"
)

// Verbose turns on debugging prints.
var Verbose = false

// instanceKey identifies one running server process. Two languages in
// the same workspace are two instances; the same language under two
// workspace roots are two instances.
type instanceKey struct {
	workspace string // absolute workspace root
	server    string // server name
}

// processHandle is the part of a spawned process the manager needs.
type processHandle interface {
	Kill() error
}

// instance is a running server. Records are owned exclusively by the
// manager; all mutation happens under the manager's lock.
//
// A record inserted by StartForWorkspace is a prewarm and carries a
// reference count of zero until a file attaches; it stays alive until
// the workspace shuts down. Records inserted by StartForFile start at
// one and are removed when the count decrements back to zero.
type instance struct {
	client   *client.Client
	proc     processHandle
	server   string
	refCount int
	files    map[string]bool
}

// pendingStart marks a spawn in flight for a key, so that concurrent
// starters wait for the single spawn instead of racing a second one.
type pendingStart struct {
	done chan struct{} // closed once err is set and the table updated
	err  error
}

// ServerOverride forces a specific server executable instead of a
// registry lookup. The server name is derived from the executable's
// base name.
type ServerOverride struct {
	Path string
	Args []string
}

func (o *ServerOverride) name() string {
	if name := filepath.Base(o.Path); name != "." && name != string(filepath.Separator) {
		return name
	}
	return "custom"
}

// Manager is the public entry point for language server lifecycle
// operations. It is safe for concurrent use.
type Manager struct {
	cfg        *config.Config
	registry   *registry.Registry
	diagWriter client.DiagnosticsWriter
	timeout    time.Duration
	maxItems   int

	mu        sync.Mutex
	instances map[instanceKey]*instance
	starting  map[instanceKey]*pendingStart

	// startFn performs binary resolution, spawn and handshake. It is
	// always called outside the manager's lock.
	startFn func(desc *registry.Descriptor, workspace string, override *ServerOverride) (*client.Client, processHandle, error)
}

// Option configures the manager.
type Option func(*Manager)

// WithDiagnosticsWriter forwards server diagnostics to w.
func WithDiagnosticsWriter(w client.DiagnosticsWriter) Option {
	return func(m *Manager) {
		m.diagWriter = w
	}
}

// WithRequestTimeout overrides the per-request timeout from config.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// New creates a manager from cfg.
func New(cfg *config.Config, opts ...Option) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	m := &Manager{
		cfg:       cfg,
		registry:  registry.New(cfg),
		timeout:   time.Duration(cfg.RequestTimeout) * time.Second,
		maxItems:  cfg.MaxCompletionItems,
		instances: make(map[instanceKey]*instance),
		starting:  make(map[instanceKey]*pendingStart),
	}
	m.startFn = m.execStart
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the manager's server registry.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Supported reports whether language support is available for the
// file type.
func (m *Manager) Supported(file string) bool {
	return lsputil.Supported(file)
}

// execStart resolves the server executable, spawns it and performs
// the handshake. A failure at any step leaves no process behind.
func (m *Manager) execStart(desc *registry.Descriptor, workspace string, override *ServerOverride) (*client.Client, processHandle, error) {
	ccfg := &client.Config{
		DiagWriter:      m.diagWriter,
		HideDiagnostics: m.cfg.HideDiagnostics,
		RPCTrace:        m.cfg.RPCTrace,
	}
	var argv []string
	if override != nil {
		argv = append([]string{override.Path}, override.Args...)
		ccfg.ServerName = override.name()
	} else {
		bin, err := m.registry.ResolveBinary(desc, workspace)
		if err != nil {
			return nil, nil, err
		}
		argv = append([]string{bin}, desc.Args...)
		ccfg.ServerName = desc.Name
		ccfg.Options = desc.Options
		ccfg.StderrFile = desc.StderrFile
		if desc.LogFile != "" {
			f, err := os.Create(desc.LogFile)
			if err != nil {
				log.Printf("could not create server %v LogFile: %v", desc.Name, err)
			} else {
				ccfg.Logger = log.New(f, "", log.LstdFlags)
			}
		}
	}
	c, proc, err := client.Execute(argv, workspace, ccfg)
	if err != nil {
		return nil, nil, err
	}
	return c, proc, nil
}

func (m *Manager) resolveForWorkspace(root string, override *ServerOverride) (string, *registry.Descriptor, error) {
	if override != nil {
		return override.name(), nil, nil
	}
	desc := m.registry.ServerForWorkspace(root)
	if desc == nil {
		return "", nil, errors.Wrapf(ErrNoServer, "workspace %v", root)
	}
	return desc.Name, desc, nil
}

func (m *Manager) resolveForFile(file string, override *ServerOverride) (string, *registry.Descriptor, error) {
	if override != nil {
		return override.name(), nil, nil
	}
	desc := m.registry.ServerForFile(file)
	if desc == nil {
		return "", nil, errors.Wrapf(ErrNoServer, "file %v", file)
	}
	return desc.Name, desc, nil
}

// StartForWorkspace starts a server for the workspace if one is not
// already running. The record is inserted with a zero reference
// count: this is a prewarm, not an attach, and must not be balanced
// by a StopForFile.
func (m *Manager) StartForWorkspace(root string, override *ServerOverride) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	name, desc, err := m.resolveForWorkspace(root, override)
	if err != nil {
		return err
	}
	return m.start(instanceKey{workspace: root, server: name}, desc, override, "")
}

// StartForFile attaches file to the server for its workspace and
// language, spawning one if needed. Every call increments the
// instance's reference count, even when the file is already attached;
// callers must balance each call with a StopForFile.
func (m *Manager) StartForFile(file, root string, override *ServerOverride) error {
	file, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return err
	}
	name, desc, err := m.resolveForFile(file, override)
	if err != nil {
		return err
	}
	return m.start(instanceKey{workspace: root, server: name}, desc, override, file)
}

// start reuses or creates the instance for k. A non-empty attach is a
// file to add to the instance. The registry lock is never held across
// the spawn and handshake; a pending marker keeps concurrent starters
// from spawning the same key twice.
func (m *Manager) start(k instanceKey, desc *registry.Descriptor, override *ServerOverride, attach string) error {
	for {
		m.mu.Lock()
		if inst, ok := m.instances[k]; ok {
			if attach == "" {
				m.mu.Unlock()
				log.Printf("language server %q already running for workspace %v", k.server, k.workspace)
				return nil
			}
			inst.refCount++
			inst.files[attach] = true
			refs := inst.refCount
			m.mu.Unlock()
			log.Printf("reusing language server %q for %v (ref count %d)", k.server, attach, refs)
			return nil
		}
		if p, ok := m.starting[k]; ok {
			m.mu.Unlock()
			<-p.done
			if p.err != nil {
				return p.err
			}
			// The spawn we waited on committed an instance;
			// retake the fast path to attach to it.
			continue
		}
		p := &pendingStart{done: make(chan struct{})}
		m.starting[k] = p
		m.mu.Unlock()

		c, proc, err := m.startFn(desc, k.workspace, override)

		m.mu.Lock()
		delete(m.starting, k)
		if err != nil {
			m.mu.Unlock()
			p.err = err
			close(p.done)
			return err
		}
		inst := &instance{
			client: c,
			proc:   proc,
			server: k.server,
			files:  make(map[string]bool),
		}
		if attach != "" {
			inst.refCount = 1
			inst.files[attach] = true
		}
		m.instances[k] = inst
		m.mu.Unlock()
		close(p.done)
		log.Printf("language server %q started for workspace %v", k.server, k.workspace)
		return nil
	}
}

// StopForFile detaches file from the instance holding it and
// decrements that instance's reference count. At zero the instance is
// removed and its process killed. A file attached to no instance is a
// no-op, not an error.
func (m *Manager) StopForFile(file string) error {
	file, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for k, inst := range m.instances {
		if !inst.files[file] {
			continue
		}
		delete(inst.files, file)
		if inst.refCount > 0 {
			inst.refCount--
		}
		if inst.refCount > 0 {
			refs := inst.refCount
			m.mu.Unlock()
			log.Printf("detached %v from language server %q (ref count %d)", file, inst.server, refs)
			return nil
		}
		delete(m.instances, k)
		m.mu.Unlock()
		m.teardown(k, inst)
		return nil
	}
	m.mu.Unlock()
	return nil
}

// teardown kills an instance already removed from the table. Kill
// failures are logged, never propagated: removal must not block on a
// dying process.
func (m *Manager) teardown(k instanceKey, inst *instance) {
	log.Printf("shutting down language server %q for workspace %v", inst.server, k.workspace)
	if err := inst.proc.Kill(); err != nil {
		log.Printf("killing language server %q: %v", inst.server, err)
	}
	inst.client.Close()
}

// ClientForFile returns a shared handle to the client of the instance
// whose workspace root contains file and whose server matches the
// file's registry descriptor.
func (m *Manager) ClientForFile(file string) (*client.Client, bool) {
	file, err := filepath.Abs(file)
	if err != nil {
		return nil, false
	}
	desc := m.registry.ServerForFile(file)
	if desc == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, inst := range m.instances {
		if k.server == desc.Name && underRoot(k.workspace, file) {
			return inst.client, true
		}
	}
	return nil, false
}

func underRoot(root, file string) bool {
	if file == root {
		return true
	}
	return strings.HasPrefix(file, root+string(filepath.Separator))
}

// Completions requests completions for file at the zero-based
// line/character position. Results are truncated to the configured
// maximum item count.
func (m *Manager) Completions(ctx context.Context, file string, line, character int) ([]lsp.CompletionItem, error) {
	file, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	c, ok := m.ClientForFile(file)
	if !ok {
		return nil, errors.Wrapf(ErrNoInstance, "file %v", file)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	items, err := c.Completion(ctx, &lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsputil.ToURI(file)},
		Position:     lsp.Position{Line: line, Character: character},
	})
	if err != nil {
		return nil, err
	}
	if len(items) > m.maxItems {
		items = items[:m.maxItems]
	}
	if Verbose {
		log.Printf("completion for %v returned %d items in %v", file, len(items), time.Since(start))
	}
	return items, nil
}

// Hover requests hover information for file at the zero-based
// line/character position. A nil result with nil error means the
// server had nothing to report.
func (m *Manager) Hover(ctx context.Context, file string, line, character int) (*lsputil.Hover, error) {
	file, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	c, ok := m.ClientForFile(file)
	if !ok {
		return nil, errors.Wrapf(ErrNoInstance, "file %v", file)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	return c.Hover(ctx, &lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsputil.ToURI(file)},
		Position:     lsp.Position{Line: line, Character: character},
	})
}

// DidOpen forwards a document-open notification for file.
func (m *Manager) DidOpen(ctx context.Context, file string, content []byte) error {
	file, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	c, ok := m.ClientForFile(file)
	if !ok {
		return errors.Wrapf(ErrNoInstance, "file %v", file)
	}
	return c.DidOpen(ctx, file, lsputil.LanguageID(file), content)
}

// DidChange forwards new contents of file as a whole-document change.
func (m *Manager) DidChange(ctx context.Context, file string, content []byte, version int) error {
	file, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	c, ok := m.ClientForFile(file)
	if !ok {
		return errors.Wrapf(ErrNoInstance, "file %v", file)
	}
	return c.DidChange(ctx, file, content, version)
}

// DidClose forwards a document-close notification for file.
func (m *Manager) DidClose(ctx context.Context, file string) error {
	file, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	c, ok := m.ClientForFile(file)
	if !ok {
		return errors.Wrapf(ErrNoInstance, "file %v", file)
	}
	return c.DidClose(ctx, file)
}

// ShutdownWorkspace removes and terminates every instance whose
// workspace root matches exactly, regardless of language or reference
// count.
func (m *Manager) ShutdownWorkspace(root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	m.mu.Lock()
	removed := make(map[instanceKey]*instance)
	for k, inst := range m.instances {
		if k.workspace == root {
			removed[k] = inst
			delete(m.instances, k)
		}
	}
	m.mu.Unlock()
	for k, inst := range removed {
		m.teardown(k, inst)
	}
	return nil
}

// ShutdownAll terminates every tracked instance. It is invoked once
// at process exit.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	removed := m.instances
	m.instances = make(map[instanceKey]*instance)
	m.mu.Unlock()
	for k, inst := range removed {
		m.teardown(k, inst)
	}
}

// PrintTo writes the known server descriptors and the running
// instances to w.
func (m *Manager) PrintTo(w io.Writer) {
	for _, d := range m.registry.Descriptors() {
		io.WriteString(w, d.Name+" "+d.Binary+" "+strings.Join(d.Args, " ")+"\n")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, inst := range m.instances {
		io.WriteString(w, k.server+" running for "+k.workspace+
			" ("+strings.Join(sortedFiles(inst), " ")+")\n")
	}
}

func sortedFiles(inst *instance) []string {
	files := make([]string, 0, len(inst.files))
	for f := range inst.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
