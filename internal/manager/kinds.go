package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tanq16/vdl/internal/downloader"
)

type Kind int

const (
	KindHTTP Kind = iota
	KindS3
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindS3:
		return "s3"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func KindFor(url string) (Kind, error) {
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return KindHTTP, nil
	case strings.HasPrefix(url, "s3://"):
		return KindS3, nil
	}
	return 0, fmt.Errorf("unsupported URL scheme: %s", url)
}

// Factory hands out the fetcher for each kind. The S3 client is built on
// first use so HTTP-only runs never load AWS configuration.
type Factory struct {
	HTTP  downloader.Fetcher
	NewS3 func(ctx context.Context) (downloader.Fetcher, error)

	mu sync.Mutex
	s3 downloader.Fetcher
}

func (f *Factory) Fetcher(ctx context.Context, kind Kind) (downloader.Fetcher, error) {
	switch kind {
	case KindHTTP:
		if f.HTTP == nil {
			return nil, fmt.Errorf("no fetcher configured for %s", kind)
		}
		return f.HTTP, nil
	case KindS3:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.s3 != nil {
			return f.s3, nil
		}
		if f.NewS3 == nil {
			return nil, fmt.Errorf("no fetcher configured for %s", kind)
		}
		s3, err := f.NewS3(ctx)
		if err != nil {
			return nil, err
		}
		f.s3 = s3
		return s3, nil
	}
	return nil, fmt.Errorf("no fetcher configured for %s", kind)
}
