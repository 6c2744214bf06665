package lsputil

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestURIRoundTrip(t *testing.T) {
	filename := "/path/to/mod1/main.ts"
	uri := ToURI(filename)
	if want := "file:///path/to/mod1/main.ts"; string(uri) != want {
		t.Errorf("ToURI(%q) = %q; want %q", filename, uri, want)
	}
	if got := ToPath(uri); got != filename {
		t.Errorf("ToPath(%q) = %q; want %q", uri, got, filename)
	}
}

func TestLanguageID(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"/w/a.ts", "typescript"},
		{"/w/a.tsx", "typescriptreact"},
		{"/w/a.js", "javascript"},
		{"/w/a.mjs", "javascript"},
		{"/w/a.cjs", "javascript"},
		{"/w/a.jsx", "javascriptreact"},
		{"/w/a.json", "json"},
		{"/w/a.py", "plaintext"},
		{"/w/Makefile", "plaintext"},
	}
	for _, test := range tests {
		if got := LanguageID(test.filename); got != test.want {
			t.Errorf("LanguageID(%q) = %q; want %q", test.filename, got, test.want)
		}
	}
}

func TestSupported(t *testing.T) {
	for _, filename := range []string{"/w/a.ts", "/w/a.tsx", "/w/a.js", "/w/a.jsx", "/w/a.mjs", "/w/a.cjs", "/w/a.json"} {
		if !Supported(filename) {
			t.Errorf("Supported(%q) = false; want true", filename)
		}
	}
	for _, filename := range []string{"/w/a.py", "/w/a.go", "/w/noext"} {
		if Supported(filename) {
			t.Errorf("Supported(%q) = true; want false", filename)
		}
	}
}

func TestHoverUnmarshal(t *testing.T) {
	tests := []struct {
		data string
		want MarkedStringList
	}{
		{
			data: `{"contents":"plain text"}`,
			want: MarkedStringList{{Value: "plain text"}},
		},
		{
			data: `{"contents":{"language":"typescript","value":"const x: number"}}`,
			want: MarkedStringList{{Language: "typescript", Value: "const x: number"}},
		},
		{
			data: `{"contents":[{"language":"typescript","value":"const x"},"extra docs"]}`,
			want: MarkedStringList{
				{Language: "typescript", Value: "const x"},
				{Value: "extra docs"},
			},
		},
		{
			data: `{"contents":{"kind":"markdown","value":"markup content"}}`,
			want: MarkedStringList{{Value: "markup content"}},
		},
	}
	for _, test := range tests {
		var h Hover
		if err := json.Unmarshal([]byte(test.data), &h); err != nil {
			t.Errorf("unmarshal %q failed: %v", test.data, err)
			continue
		}
		if !cmp.Equal(h.Contents, test.want) {
			t.Errorf("contents of %q are %v; want %v", test.data, h.Contents, test.want)
		}
	}
}

func TestHoverText(t *testing.T) {
	h := Hover{Contents: MarkedStringList{
		{Language: "typescript", Value: "const x"},
		{Value: "docs"},
	}}
	if got, want := h.Text(), "const x\ndocs"; got != want {
		t.Errorf("Text() = %q; want %q", got, want)
	}
}
