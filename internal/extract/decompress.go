package extract

import (
	"bytes"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Decompress undoes the request Content-Encoding. Unknown encodings and
// decode failures return the input unchanged; the caller forwards the
// original bytes upstream either way, so this can only ever lose an
// inspection, never a request.
func Decompress(data []byte, encoding string) []byte {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return data
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return data
		}
		return out

	case "deflate":
		// Browsers disagree on whether deflate means zlib-wrapped or raw
		// DEFLATE, so try both.
		if r, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
			if out, err := io.ReadAll(r); err == nil {
				r.Close()
				return out
			}
			r.Close()
		}
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return data
		}
		return out

	case "br":
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return data
		}
		return out
	}

	return data
}
