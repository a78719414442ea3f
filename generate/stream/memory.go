package stream

import (
	"context"
	"io"
	"strings"
	"sync"
)

type memoryDocument struct {
	content   string
	mediaType string
}

// MemoryLocator serves documents held in memory
type MemoryLocator struct {
	mu   sync.RWMutex
	docs map[string]memoryDocument
}

// NewMemoryLocator creates an empty in-memory locator
func NewMemoryLocator() *MemoryLocator {
	return &MemoryLocator{docs: make(map[string]memoryDocument)}
}

// Put stores a document under a locator
func (m *MemoryLocator) Put(locator, mediaType, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[locator] = memoryDocument{content: content, mediaType: mediaType}
}

// Open implements Locator
func (m *MemoryLocator) Open(ctx context.Context, req Request) (*TypedStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	doc, ok := m.docs[req.Locator]
	m.mu.RUnlock()
	if !ok || !acceptable(req.AcceptMediaType, doc.mediaType) {
		return nil, notFound(req)
	}
	return &TypedStream{
		ReadCloser: io.NopCloser(strings.NewReader(doc.content)),
		MediaType:  doc.mediaType,
		Locator:    req.Locator,
	}, nil
}
