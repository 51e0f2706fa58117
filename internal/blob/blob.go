// Package blob stores uploaded and generated files on local disk and hands
// out public URLs for them.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var ErrInvalidPath = errors.New("invalid blob path")

// Blob describes a stored object.
type Blob struct {
	URL                string `json:"url"`
	DownloadURL        string `json:"downloadUrl"`
	Pathname           string `json:"pathname"`
	ContentType        string `json:"contentType"`
	ContentDisposition string `json:"contentDisposition"`
}

// LocalStore keeps blobs under dir and serves them below publicURL.
type LocalStore struct {
	dir       string
	publicURL string
}

func NewLocalStore(dir, publicURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("blob directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalStore{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Dir is the directory that backs the store.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put writes data under pathname. An existing name gets a " (n)" suffix.
func (s *LocalStore) Put(ctx context.Context, pathname string, data []byte, contentType string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := cleanPathname(pathname)
	if err != nil {
		return nil, err
	}
	final := s.uniquePathname(clean)
	dest := filepath.Join(s.dir, filepath.FromSlash(final))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	url := s.publicURL + "/" + final
	return &Blob{
		URL:                url,
		DownloadURL:        url + "?download=1",
		Pathname:           final,
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf(`attachment; filename="%s"`, path.Base(final)),
	}, nil
}

// LocalPath maps a URL handed out by Put back to the file on disk.
func (s *LocalStore) LocalPath(url string) (string, bool) {
	prefix := s.publicURL + "/"
	if s.publicURL == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(url, prefix)
	if i := strings.IndexAny(rel, "?#"); i >= 0 {
		rel = rel[:i]
	}
	clean, err := cleanPathname(rel)
	if err != nil {
		return "", false
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), true
}

func (s *LocalStore) uniquePathname(pathname string) string {
	if _, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(pathname))); os.IsNotExist(err) {
		return pathname
	}
	ext := path.Ext(pathname)
	base := strings.TrimSuffix(pathname, ext)
	for idx := 1; idx <= 1000; idx++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, idx, ext)
		if _, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(candidate))); os.IsNotExist(err) {
			return candidate
		}
	}
	return fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext)
}

func cleanPathname(p string) (string, error) {
	p = strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return clean, nil
}
