package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
)

// DocumentStore keeps documents in BadgerDB keyed by locator. It serves
// as a persistent cache in front of slower locators and as a standalone
// document repository.
type DocumentStore struct {
	db *badger.DB
}

// NewDocumentStore opens a store at path. An empty path opens an
// in-memory store.
func NewDocumentStore(path string) (*DocumentStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &DocumentStore{db: db}, nil
}

// Close closes the underlying database
func (s *DocumentStore) Close() error {
	return s.db.Close()
}

func documentKey(locator string) []byte {
	return append([]byte("doc/"), locator...)
}

// encodeDocument stores the media type as a length-prefixed header
func encodeDocument(mediaType string, content []byte) []byte {
	var buf bytes.Buffer
	var n [binary.MaxVarintLen64]byte
	buf.Write(n[:binary.PutUvarint(n[:], uint64(len(mediaType)))])
	buf.WriteString(mediaType)
	buf.Write(content)
	return buf.Bytes()
}

func decodeDocument(val []byte) (string, []byte, error) {
	l, n := binary.Uvarint(val)
	if n <= 0 || uint64(len(val)-n) < l {
		return "", nil, fmt.Errorf("corrupt document header")
	}
	end := n + int(l)
	return string(val[n:end]), val[end:], nil
}

// Put stores a document
func (s *DocumentStore) Put(locator, mediaType string, content []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(documentKey(locator), encodeDocument(mediaType, content)); err != nil {
			return fmt.Errorf("failed to store %s: %w", locator, err)
		}
		return nil
	})
}

// Delete removes a document
func (s *DocumentStore) Delete(locator string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(documentKey(locator)); err != nil && err != badger.ErrKeyNotFound {
			return fmt.Errorf("failed to delete %s: %w", locator, err)
		}
		return nil
	})
}

// Locators lists stored locators in key order
func (s *DocumentStore) Locators() ([]string, error) {
	var result []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("doc/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			result = append(result, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return result, err
}

// Open implements Locator
func (s *DocumentStore) Open(ctx context.Context, req Request) (*TypedStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var mediaType string
	var content []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(req.Locator))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			mt, body, err := decodeDocument(val)
			if err != nil {
				return err
			}
			mediaType = mt
			content = append([]byte(nil), body...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, notFound(req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.Locator, err)
	}
	if !acceptable(req.AcceptMediaType, mediaType) {
		return nil, notFound(req)
	}
	return &TypedStream{
		ReadCloser: io.NopCloser(bytes.NewReader(content)),
		MediaType:  mediaType,
		Locator:    req.Locator,
	}, nil
}

// CachingLocator serves documents from a store, filling it from a
// backing locator on a miss
type CachingLocator struct {
	Store   *DocumentStore
	Backing Locator
}

// Open implements Locator
func (c *CachingLocator) Open(ctx context.Context, req Request) (*TypedStream, error) {
	s, err := c.Store.Open(ctx, req)
	if err == nil {
		return s, nil
	}

	s, err = c.Backing.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.Locator, err)
	}
	if err := c.Store.Put(req.Locator, s.MediaType, data); err != nil {
		return nil, err
	}
	return &TypedStream{
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
		MediaType:  s.MediaType,
		Locator:    req.Locator,
	}, nil
}
