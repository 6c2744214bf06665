package lsputil

import (
	"path/filepath"
	"strings"
)

// LanguageID maps a filename to the language identifier sent in
// textDocument/didOpen. Unrecognized extensions map to plaintext.
func LanguageID(filename string) string {
	switch ext(filename) {
	case "ts":
		return "typescript"
	case "tsx":
		return "typescriptreact"
	case "js", "mjs", "cjs":
		return "javascript"
	case "jsx":
		return "javascriptreact"
	case "json":
		return "json"
	default:
		return "plaintext"
	}
}

// Supported reports whether language support is available for filename.
func Supported(filename string) bool {
	switch ext(filename) {
	case "ts", "tsx", "js", "jsx", "mjs", "cjs", "json":
		return true
	default:
		return false
	}
}

func ext(filename string) string {
	return strings.TrimPrefix(filepath.Ext(filename), ".")
}
