package receipt

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"strings"
	"time"
)

// ImageFetcher loads and decodes the logo/QR artwork referenced by the shop
// configuration. Implementations must be safe for use from the dispatch
// goroutine.
type ImageFetcher interface {
	Fetch(url string) (image.Image, error)
}

// HTTPFetcher fetches images over http(s) and also understands data URIs
// and local file paths, so packaged logos work without a web server.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher with a bounded request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: 10 * time.Second}}
}

// Fetch loads and decodes the image at the given location.
func (f *HTTPFetcher) Fetch(url string) (image.Image, error) {
	switch {
	case strings.HasPrefix(url, "data:"):
		return decodeDataURI(url)
	case strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://"):
		resp, err := f.Client.Get(url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch image: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
		}
		img, _, err := image.Decode(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		return img, nil
	default:
		data, err := os.ReadFile(url)
		if err != nil {
			return nil, fmt.Errorf("failed to read image file: %w", err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		return img, nil
	}
}

// decodeDataURI decodes a base64 data URI into an image.
func decodeDataURI(uri string) (image.Image, error) {
	idx := strings.Index(uri, ",")
	if idx == -1 {
		return nil, fmt.Errorf("malformed data URI")
	}
	raw, err := base64.StdEncoding.DecodeString(uri[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
