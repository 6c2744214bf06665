package client

import (
	"io"
	"net"
	"os"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
)

// Process is a handle on a spawned language server process. Kill
// consumes the handle: the first call terminates the process, later
// calls return the first call's result.
type Process struct {
	cmd  *exec.Cmd
	conn io.Closer

	once    sync.Once
	killErr error
}

// Kill closes the server's pipes and terminates the process. It does
// not wait for the process to exit.
func (p *Process) Kill() error {
	p.once.Do(func() {
		p.conn.Close()
		p.killErr = p.cmd.Process.Kill()
	})
	return p.killErr
}

// Pid returns the process id of the server.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Execute starts the language server command argv with its stdin and
// stdout connected to a new client and performs the handshake with
// rootDir as the workspace root. On handshake failure the process is
// killed before returning.
func Execute(argv []string, rootDir string, cfg *Config) (*Client, *Process, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	stderr := os.Stderr
	if cfg.StderrFile != "" {
		f, err := os.Create(cfg.StderrFile)
		if err != nil {
			return nil, nil, errors.Wrap(err, "could not create server StderrFile")
		}
		stderr = f
	}

	p0, p1 := net.Pipe()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = p0
	cmd.Stdout = p0
	if Verbose || cfg.StderrFile != "" {
		cmd.Stderr = stderr
	}
	if err := cmd.Start(); err != nil {
		p0.Close()
		p1.Close()
		return nil, nil, errors.Wrapf(err, "failed to execute language server %v", argv[0])
	}
	proc := &Process{
		cmd:  cmd,
		conn: p1,
	}

	// Closing our pipe end when the server dies fails the read loop,
	// which resolves all pending requests with an error instead of
	// leaving them hanging.
	go func() {
		cmd.Wait()
		p1.Close()
	}()

	c, err := New(p1, rootDir, cfg)
	if err != nil {
		proc.Kill()
		return nil, nil, err
	}
	return c, proc, nil
}
