package stream

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileLocator resolves locators against a base directory. Logical names
// are first translated through the mapper; otherwise file: URIs and
// relative paths are looked up directly.
type FileLocator struct {
	BaseDir string
	Mapper  *LocationMapper
}

// NewFileLocator creates a locator rooted at baseDir
func NewFileLocator(baseDir string, mapper *LocationMapper) *FileLocator {
	return &FileLocator{BaseDir: baseDir, Mapper: mapper}
}

// Open implements Locator
func (l *FileLocator) Open(ctx context.Context, req Request) (*TypedStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel, mediaType, ok := l.resolve(req.Locator)
	if !ok {
		return nil, notFound(req)
	}
	if mediaType == "" {
		mediaType = GuessMediaType(rel)
	}
	if !acceptable(req.AcceptMediaType, mediaType) {
		return nil, notFound(req)
	}

	full := rel
	if !filepath.IsAbs(full) {
		full = filepath.Join(l.BaseDir, rel)
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(req)
		}
		return nil, fmt.Errorf("failed to open %s: %w", req.Locator, err)
	}
	return &TypedStream{ReadCloser: f, MediaType: mediaType, Locator: req.Locator}, nil
}

func (l *FileLocator) resolve(locator string) (string, string, bool) {
	if m, ok := l.Mapper.Lookup(locator); ok {
		return m.Path, m.MediaType, true
	}
	if strings.HasPrefix(locator, "file:") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", "", false
		}
		return u.Path, "", true
	}
	if strings.Contains(locator, "://") || locator == "" {
		return "", "", false
	}
	clean := filepath.Clean(filepath.FromSlash(locator))
	if strings.HasPrefix(clean, "..") {
		return "", "", false
	}
	return clean, "", true
}
