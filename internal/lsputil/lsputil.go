// Package lsputil contains Language Server Protocol helper types and
// utility functions shared by the client and the manager.
//
// Hover contents are redefined here because of an upstream bug:
// https://github.com/sourcegraph/go-lsp/issues/2
package lsputil

import (
	"encoding/json"
	"strings"

	lsp "github.com/sourcegraph/go-lsp"
)

// ToURI converts filename to URI.
func ToURI(filename string) lsp.DocumentURI {
	return lsp.DocumentURI("file://" + filename)
}

// ToPath converts URI to filename.
func ToPath(uri lsp.DocumentURI) string {
	return strings.TrimPrefix(string(uri), "file://")
}

// Hover is the result of a textDocument/hover request. It differs from
// lsp.Hover in that the contents field tolerates all three encodings
// (string, object, list) that servers send in practice.
type Hover struct {
	Contents MarkedStringList `json:"contents"`
	Range    *lsp.Range       `json:"range,omitempty"`
}

// Text returns the hover contents joined into a single string.
func (h *Hover) Text() string {
	parts := make([]string, 0, len(h.Contents))
	for _, m := range h.Contents {
		if m.Value != "" {
			parts = append(parts, m.Value)
		}
	}
	return strings.Join(parts, "\n")
}

type MarkedString struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

func (m *MarkedString) UnmarshalJSON(data []byte) error {
	if d := strings.TrimSpace(string(data)); len(d) > 0 && d[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		m.Value = s
		return nil
	}
	type noUnmarshal MarkedString
	ms := (*noUnmarshal)(m)
	return json.Unmarshal(data, ms)
}

type MarkedStringList []MarkedString

func (r *MarkedStringList) UnmarshalJSON(data []byte) error {
	if d := strings.TrimSpace(string(data)); len(d) > 0 && d[0] == '[' {
		type noUnmarshal MarkedStringList
		return json.Unmarshal(data, (*noUnmarshal)(r))
	}
	*r = make(MarkedStringList, 1)
	return json.Unmarshal(data, &(*r)[0])
}
