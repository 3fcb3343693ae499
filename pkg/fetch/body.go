package fetch

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// AcceptEncoding is advertised on page requests; ReadPageBody decodes each of these
const AcceptEncoding = "gzip, deflate, br"

// ReadPageBody decodes resp.Body according to Content-Encoding and reads at most maxBytes of decoded content.
// The body is always closed. Exceeding maxBytes is an error.
func ReadPageBody(resp *http.Response, maxBytes int64) ([]byte, error) {
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip decode: %w", utils.ErrResponseBodyRead, err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	default:
		return nil, fmt.Errorf("%w: unsupported Content-Encoding '%s'", utils.ErrResponseBodyRead, encoding)
	}

	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	body, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: page exceeds max size (%d bytes)", utils.ErrResponseBodyRead, maxBytes)
	}
	return body, nil
}
