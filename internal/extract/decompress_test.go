package extract

import (
	"bytes"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecompress_Gzip(t *testing.T) {
	original := []byte(`{"event":"Login","properties":{"ok":true}}`)
	got := Decompress(gzipBytes(t, original), "gzip")
	if !bytes.Equal(got, original) {
		t.Errorf("gzip: got %q, want %q", got, original)
	}
}

func TestDecompress_Deflate(t *testing.T) {
	original := []byte(`{"event":"x"}`)

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(original)
	w.Close()

	got := Decompress(buf.Bytes(), "deflate")
	if !bytes.Equal(got, original) {
		t.Errorf("deflate: got %q, want %q", got, original)
	}
}

func TestDecompress_Brotli(t *testing.T) {
	original := []byte(`{"event":"x","n":1}`)

	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	w.Write(original)
	w.Close()

	got := Decompress(buf.Bytes(), "br")
	if !bytes.Equal(got, original) {
		t.Errorf("brotli: got %q, want %q", got, original)
	}
}

func TestDecompress_UnknownEncodingPassesThrough(t *testing.T) {
	original := []byte(`{"event":"x"}`)
	if got := Decompress(original, "zstd"); !bytes.Equal(got, original) {
		t.Errorf("unknown encoding must pass bytes through, got %q", got)
	}
	if got := Decompress(original, ""); !bytes.Equal(got, original) {
		t.Errorf("empty encoding must pass bytes through, got %q", got)
	}
}

func TestDecompress_CorruptInputPassesThrough(t *testing.T) {
	junk := []byte("definitely not gzip")
	if got := Decompress(junk, "gzip"); !bytes.Equal(got, junk) {
		t.Errorf("corrupt input must pass through unchanged, got %q", got)
	}
}
