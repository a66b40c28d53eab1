// Package devserver is a local, in-memory reference implementation of the
// wire contracts the client consumes: the typed-field document store with
// field-mask and precondition semantics, the driver presence endpoints, and
// the settlement endpoints. It exists for local development and integration
// tests; production talks to the real backend.
package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"courier/internal/codec"

	"github.com/spf13/cast"
)

var (
	errNotFound           = errors.New("document not found")
	errPreconditionFailed = errors.New("precondition failed")
)

// fieldPrecondition makes a patch conditional on a field's current value.
type fieldPrecondition struct {
	Path  string
	Value string
}

// DocumentStore holds documents in their wire form (typed-field maps),
// keyed by collection and document id.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{collections: make(map[string]map[string]map[string]any)}
}

// Get returns a copy of one document's wire fields.
func (s *DocumentStore) Get(collection, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, errNotFound
	}
	return deepCopy(doc), nil
}

// List returns all documents of a collection, ordered by id for stable
// listings.
func (s *DocumentStore) List(collection string) []storedDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]storedDocument, 0, len(s.collections[collection]))
	for id, fields := range s.collections[collection] {
		docs = append(docs, storedDocument{ID: id, Fields: deepCopy(fields)})
	}
	sort.Slice(docs, func(a, b int) bool { return docs[a].ID < docs[b].ID })
	return docs
}

type storedDocument struct {
	ID     string
	Fields map[string]any
}

// Set creates or replaces a document with no mask.
func (s *DocumentStore) Set(collection, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]any)
	}
	s.collections[collection][id] = deepCopy(fields)
}

// Patch merges exactly the masked field paths into an existing document,
// leaving every other field untouched. When a precondition is given, the
// named field's current value must still match or nothing is written.
func (s *DocumentStore) Patch(collection, id string, fields map[string]any, maskPaths []string, pre *fieldPrecondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return errNotFound
	}

	if pre != nil {
		current := valueAtPath(doc, pre.Path)
		if current == nil || cast.ToString(codec.DecodeValue(current)) != pre.Value {
			return errPreconditionFailed
		}
	}

	for _, path := range maskPaths {
		value := valueAtPath(fields, path)
		if value == nil {
			// A masked path missing from the body clears the field.
			deleteAtPath(doc, path)
			continue
		}
		setAtPath(doc, path, value)
	}
	return nil
}

// Delete removes a document.
func (s *DocumentStore) Delete(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return errNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// valueAtPath walks a dotted path through wire fields, descending through
// mapValue levels. Returns nil when the path does not resolve.
func valueAtPath(fields map[string]any, path string) map[string]any {
	parts := strings.Split(path, ".")
	node := fields
	for i, part := range parts {
		raw, ok := node[part].(map[string]any)
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return raw
		}
		mv, ok := raw["mapValue"].(map[string]any)
		if !ok {
			return nil
		}
		node, ok = mv["fields"].(map[string]any)
		if !ok {
			return nil
		}
	}
	return nil
}

// setAtPath writes a wire value at a dotted path, creating intermediate
// mapValue levels as needed.
func setAtPath(fields map[string]any, path string, value map[string]any) {
	parts := strings.Split(path, ".")
	node := fields
	for _, part := range parts[:len(parts)-1] {
		raw, ok := node[part].(map[string]any)
		if !ok {
			raw = map[string]any{}
			node[part] = raw
		}
		mv, ok := raw["mapValue"].(map[string]any)
		if !ok {
			mv = map[string]any{}
			raw["mapValue"] = mv
			// Replace whatever non-map value was there.
			for k := range raw {
				if k != "mapValue" {
					delete(raw, k)
				}
			}
		}
		inner, ok := mv["fields"].(map[string]any)
		if !ok {
			inner = map[string]any{}
			mv["fields"] = inner
		}
		node = inner
	}
	node[parts[len(parts)-1]] = deepCopyValue(value)
}

func deleteAtPath(fields map[string]any, path string) {
	parts := strings.Split(path, ".")
	node := fields
	for _, part := range parts[:len(parts)-1] {
		raw, ok := node[part].(map[string]any)
		if !ok {
			return
		}
		mv, ok := raw["mapValue"].(map[string]any)
		if !ok {
			return
		}
		node, ok = mv["fields"].(map[string]any)
		if !ok {
			return
		}
	}
	delete(node, parts[len(parts)-1])
}

func deepCopy(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = deepCopyAny(v)
	}
	return out
}

func deepCopyValue(value map[string]any) map[string]any {
	return deepCopy(value)
}

func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopy(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = deepCopyAny(elem)
		}
		return out
	default:
		return val
	}
}
