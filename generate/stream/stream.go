// Package stream resolves logical document locators to typed byte streams.
// Source clauses, remote extension loading and sub-query name resolution
// all go through a Locator.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
)

// ErrNotFound is returned when a locator has no mapping
var ErrNotFound = errors.New("stream not found")

// Media types used by the engine itself
const (
	MediaTypeQuery    = "application/vnd.sparql-generate"
	MediaTypeFunction = "application/vnd.sparql-generate-function"
	MediaTypeDefault  = "application/octet-stream"
)

// Request identifies a document and the media type the caller prefers
type Request struct {
	Locator         string
	AcceptMediaType string
}

func (r Request) String() string {
	if r.AcceptMediaType == "" {
		return r.Locator
	}
	return fmt.Sprintf("%s (accept %s)", r.Locator, r.AcceptMediaType)
}

// TypedStream is an open document together with its media type
type TypedStream struct {
	io.ReadCloser
	MediaType string
	Locator   string
}

// ReadAll reads the whole stream and closes it
func (s *TypedStream) ReadAll() (string, error) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", s.Locator, err)
	}
	return string(data), nil
}

// Locator opens documents. Implementations return an error wrapping
// ErrNotFound when the locator has no mapping.
type Locator interface {
	Open(ctx context.Context, req Request) (*TypedStream, error)
}

// LocatorFunc adapts a function to the Locator interface
type LocatorFunc func(ctx context.Context, req Request) (*TypedStream, error)

// Open implements Locator
func (f LocatorFunc) Open(ctx context.Context, req Request) (*TypedStream, error) {
	return f(ctx, req)
}

// ChainLocator tries each locator in order and returns the first hit
type ChainLocator []Locator

// Open implements Locator
func (c ChainLocator) Open(ctx context.Context, req Request) (*TypedStream, error) {
	for _, l := range c {
		s, err := l.Open(ctx, req)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, notFound(req)
}

func notFound(req Request) error {
	return fmt.Errorf("%w: %s", ErrNotFound, req)
}

// acceptable reports whether a document of the given media type satisfies
// the accept type of a request. An empty accept type or */* matches
// everything; type/* matches any subtype.
func acceptable(accept, mediaType string) bool {
	if accept == "" || accept == "*/*" || mediaType == "" {
		return true
	}
	accept = baseType(accept)
	mediaType = baseType(mediaType)
	if strings.HasSuffix(accept, "/*") {
		return strings.HasPrefix(mediaType, strings.TrimSuffix(accept, "*"))
	}
	return accept == mediaType
}

func baseType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// GuessMediaType derives a media type from a file name extension
func GuessMediaType(name string) string {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".rqg", ".generate", ".edn":
		return MediaTypeQuery
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".geojson":
		return "application/geo+json"
	case ".md":
		return "text/markdown"
	case ".db", ".sqlite":
		return "application/vnd.sqlite3"
	case "":
		return MediaTypeDefault
	default:
		if mt := mime.TypeByExtension(ext); mt != "" {
			return baseType(mt)
		}
		return MediaTypeDefault
	}
}
