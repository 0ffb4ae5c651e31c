package artwork

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

var ErrFetch = errors.New("artwork fetch failed")

const maxBodyBytes = 8 << 20

type Fetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// HTTPFetcher downloads and decodes artwork, scaling it down to fit within
// MaxSize pixels on each side.
type HTTPFetcher struct {
	client  *http.Client
	MaxSize uint
}

func NewHTTPFetcher(timeout time.Duration, maxSize uint) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		MaxSize: maxSize,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty url", ErrFetch)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", "earshot")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrFetch, resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFetch, err)
	}
	if f.MaxSize > 0 {
		img = resize.Thumbnail(f.MaxSize, f.MaxSize, img, resize.Lanczos3)
	}
	return img, nil
}
