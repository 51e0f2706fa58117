package normalize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"

	"chatbff/internal/blob"
)

const (
	FetchTimeout     = 15 * time.Second
	MaxFetchBytes    = 20 << 20
	fetchUserAgent   = "chatbff-fetch/1.0"
	fetchConcurrency = 8
)

var (
	// ErrNotLocal is returned by BlobFetcher for URLs it does not serve.
	ErrNotLocal = errors.New("url is not served by the local blob store")
	// ErrTooLarge is returned when a body exceeds the fetch size cap.
	ErrTooLarge = errors.New("file exceeds fetch size limit")
)

// Fetcher loads the bytes behind a file part URL.
type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, string, error)
}

// HTTPFetcher downloads remote files.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = FetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = MaxFetchBytes
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, target string) ([]byte, string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", errors.New("unsupported url scheme")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("fetch file: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, "", ErrTooLarge
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// BlobFetcher reads files stored by the local blob store straight from disk.
type BlobFetcher struct {
	store  *blob.LocalStore
	loader *file.FileLoader
}

func NewBlobFetcher(ctx context.Context, store *blob.LocalStore) (*BlobFetcher, error) {
	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      extParser,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &BlobFetcher{store: store, loader: loader}, nil
}

func (f *BlobFetcher) Fetch(ctx context.Context, target string) ([]byte, string, error) {
	path, ok := f.store.LocalPath(target)
	if !ok {
		return nil, "", ErrNotLocal
	}
	docs, err := f.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return nil, "", fmt.Errorf("load blob: %w", err)
	}
	var b strings.Builder
	for _, doc := range docs {
		b.WriteString(doc.Content)
	}
	return []byte(b.String()), "", nil
}

// chain tries the local fetcher first and falls back to the remote one.
type chain struct {
	local  Fetcher
	remote Fetcher
}

func (c chain) Fetch(ctx context.Context, target string) ([]byte, string, error) {
	if c.local != nil {
		data, mediaType, err := c.local.Fetch(ctx, target)
		if !errors.Is(err, ErrNotLocal) {
			return data, mediaType, err
		}
	}
	if c.remote == nil {
		return nil, "", errors.New("no fetcher configured")
	}
	return c.remote.Fetch(ctx, target)
}
