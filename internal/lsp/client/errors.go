package client

import "fmt"

// HandshakeError reports that a server process started but the
// initialize exchange did not complete.
type HandshakeError struct {
	Server string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Server == "" {
		return fmt.Sprintf("language server handshake failed: %v", e.Err)
	}
	return fmt.Sprintf("handshake with language server %q failed: %v", e.Server, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
