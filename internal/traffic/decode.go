package traffic

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pools for decompression readers; bodies are decoded once per recorded entry.
var (
	gzipReaderPool = sync.Pool{
		New: func() any { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() any { return brotli.NewReader(nil) },
	}
)

// decodeBody undoes the Content-Encoding layers listed in encodings. Layers
// are listed in the order they were applied and decoded in reverse.
func decodeBody(encodings []string, body []byte) ([]byte, error) {
	for i := len(encodings) - 1; i >= 0; i-- {
		for _, layer := range splitEncodings(encodings[i]) {
			decoded, err := decodeLayer(layer, body)
			if err != nil {
				return nil, err
			}
			body = decoded
		}
	}
	return body, nil
}

// splitEncodings splits "gzip, br" into its layers, last applied first.
func splitEncodings(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		out = append(out, strings.ToLower(strings.TrimSpace(parts[i])))
	}
	return out
}

func decodeLayer(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "gzip", "x-gzip":
		zr := gzipReaderPool.Get().(*gzip.Reader)
		defer gzipReaderPool.Put(zr)
		if err := zr.Reset(bytes.NewReader(body)); err != nil {
			return nil, fmt.Errorf("gzip initialization error: %w", err)
		}
		return readAll(zr, "gzip")

	case "br":
		br := brotliReaderPool.Get().(*brotli.Reader)
		defer brotliReaderPool.Put(br)
		if err := br.Reset(bytes.NewReader(body)); err != nil {
			return nil, fmt.Errorf("brotli initialization error: %w", err)
		}
		return readAll(br, "brotli")

	case "deflate":
		return readAll(deflateReader(body), "deflate")

	case "identity", "":
		return body, nil

	default:
		return nil, fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
	}
}

func readAll(r io.Reader, name string) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s decode error: %w", name, err)
	}
	return out, nil
}

// deflateReader accepts both zlib-wrapped (RFC 1950) and raw (RFC 1951)
// deflate streams; servers disagree on which one "deflate" means.
func deflateReader(body []byte) io.Reader {
	if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
		return zr
	}
	return flate.NewReader(bytes.NewReader(body))
}
