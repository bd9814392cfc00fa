package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// decoder converts raw DBF attribute bytes to UTF-8.
type decoder func(string) string

// attributeDecoder picks the code page for a shapefile's DBF: the explicit
// override, else the .cpg sidecar, else UTF-8 when valid with a
// Windows-1252 fallback.
func attributeDecoder(shpPath, override string) (decoder, string, error) {
	name := strings.TrimSpace(override)
	if name == "" {
		cpg := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".cpg"
		if b, err := os.ReadFile(cpg); err == nil {
			name = strings.TrimSpace(string(b))
		}
	}
	if name == "" {
		return sniff, "auto", nil
	}

	enc, err := htmlindex.Get(codePageLabel(name))
	if err != nil {
		return nil, name, eris.Wrapf(err, "ingest: unsupported code page %q", name)
	}
	if enc == unicode.UTF8 {
		return func(s string) string { return s }, name, nil
	}
	return decodeWith(enc), name, nil
}

func decodeWith(enc encoding.Encoding) decoder {
	return func(s string) string {
		out, err := enc.NewDecoder().String(s)
		if err != nil {
			return s
		}
		return out
	}
}

var windows1252 = decodeWith(charmap.Windows1252)

func sniff(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return windows1252(s)
}

// codePageLabel maps ESRI .cpg values ("1252", "88591", "UTF8") to WHATWG
// encoding labels.
func codePageLabel(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == "utf8":
		return "utf-8"
	case strings.HasPrefix(n, "8859"):
		return "iso-8859-" + strings.TrimPrefix(strings.TrimPrefix(n, "8859"), "_")
	case n != "" && strings.Trim(n, "0123456789") == "":
		return "windows-" + n
	}
	return n
}
